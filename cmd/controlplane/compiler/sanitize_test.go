package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func promptNode(class string, inputs map[string]any) map[string]any {
	return map[string]any{"class_type": class, "inputs": inputs}
}

func TestSanitize_RemovesAnnotationNodes(t *testing.T) {
	payload := map[string]any{
		"prompt": map[string]any{
			"1": promptNode("LoadImage", map[string]any{"image": "a.png"}),
			"2": promptNode("Note", map[string]any{}),
			"3": promptNode("MarkdownNote", map[string]any{}),
			"9": promptNode("SaveImage", map[string]any{"images": []any{"1", 0}}),
		},
	}

	out := Sanitize(payload)
	prompt := out["prompt"].(map[string]any)

	assert.NotContains(t, prompt, "2")
	assert.NotContains(t, prompt, "3")
	assert.Contains(t, prompt, "1")
	assert.Contains(t, prompt, "9")
}

func TestSanitize_UnrollsSwitchReferences(t *testing.T) {
	payload := map[string]any{
		"prompt": map[string]any{
			"1": promptNode("LoadImage", map[string]any{"image": "a.png"}),
			"6": promptNode("Any Switch (rgthree)", map[string]any{
				"any_01": []any{"1", 0},
			}),
			"9": promptNode("SaveImage", map[string]any{"images": []any{"6", 0}}),
		},
	}

	out := Sanitize(payload)
	prompt := out["prompt"].(map[string]any)

	assert.NotContains(t, prompt, "6")
	images := prompt["9"].(map[string]any)["inputs"].(map[string]any)["images"]
	assert.Equal(t, []any{"1", 0}, images)
}

func TestSanitize_UnrollsBypassSafeNodes(t *testing.T) {
	payload := map[string]any{
		"prompt": map[string]any{
			"1": promptNode("CheckpointLoaderSimple", map[string]any{"ckpt_name": "sd15.safetensors"}),
			"4": promptNode("PathchSageAttentionKJ", map[string]any{
				"model": []any{"1", 0},
			}),
			"7": promptNode("KSampler", map[string]any{"model": []any{"4", 0}}),
			"9": promptNode("SaveImage", map[string]any{"images": []any{"7", 0}}),
		},
	}

	out := Sanitize(payload)
	prompt := out["prompt"].(map[string]any)

	assert.NotContains(t, prompt, "4")
	model := prompt["7"].(map[string]any)["inputs"].(map[string]any)["model"]
	assert.Equal(t, []any{"1", 0}, model)
}

func TestSanitize_DropsEmptyLoraAdapter(t *testing.T) {
	payload := map[string]any{
		"prompt": map[string]any{
			"5": promptNode("DownloadAndLoadFlorence2Model", map[string]any{
				"model":     "microsoft/Florence-2-base",
				"precision": "fp16",
				"lora":      "",
			}),
		},
	}

	out := Sanitize(payload)
	inputs := out["prompt"].(map[string]any)["5"].(map[string]any)["inputs"].(map[string]any)

	assert.NotContains(t, inputs, "lora")
	assert.Contains(t, inputs, "model")

	// a real adapter value survives
	payload2 := map[string]any{
		"prompt": map[string]any{
			"5": promptNode("DownloadAndLoadFlorence2Model", map[string]any{
				"lora": "style-adapter",
			}),
		},
	}
	out2 := Sanitize(payload2)
	inputs2 := out2["prompt"].(map[string]any)["5"].(map[string]any)["inputs"].(map[string]any)
	assert.Equal(t, "style-adapter", inputs2["lora"])
}

func TestSanitize_NormalizesExtraPNGInfo(t *testing.T) {
	payload := map[string]any{
		"prompt":        map[string]any{},
		"extra_pnginfo": map[string]any{"workflow": map[string]any{}},
	}

	out := Sanitize(payload)
	list, ok := out["extra_pnginfo"].([]any)
	require.True(t, ok, "extra_pnginfo must become a list")
	require.Len(t, list, 1)
}

// Sanitizing an already-sanitized payload changes nothing.
func TestSanitize_Idempotent(t *testing.T) {
	payload := map[string]any{
		"prompt": map[string]any{
			"1": promptNode("LoadImage", map[string]any{"image": "a.png"}),
			"2": promptNode("Note", map[string]any{}),
			"6": promptNode("Any Switch (rgthree)", map[string]any{
				"any_01": []any{"1", 0},
			}),
			"9": promptNode("SaveImage", map[string]any{"images": []any{"6", 0}}),
		},
		"extra_pnginfo": map[string]any{"workflow": map[string]any{}},
	}

	once := Sanitize(payload)
	twice := Sanitize(once)

	assert.Equal(t, once, twice)
}

// Float64 slots from a JSON round-trip are still recognized as link refs.
func TestSanitize_FloatSlots(t *testing.T) {
	payload := map[string]any{
		"prompt": map[string]any{
			"1": promptNode("LoadImage", map[string]any{"image": "a.png"}),
			"6": promptNode("Any Switch (rgthree)", map[string]any{
				"any_01": []any{"1", float64(0)},
			}),
			"9": promptNode("SaveImage", map[string]any{"images": []any{"6", float64(0)}}),
		},
	}

	out := Sanitize(payload)
	prompt := out["prompt"].(map[string]any)

	assert.NotContains(t, prompt, "6")
	images := prompt["9"].(map[string]any)["inputs"].(map[string]any)["images"]
	assert.Equal(t, []any{"1", 0}, images)
}
