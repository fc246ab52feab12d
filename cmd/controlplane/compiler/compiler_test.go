package compiler

import (
	"context"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixeon/renderplane/cmd/controlplane/models"
	apperrors "github.com/pixeon/renderplane/common/errors"
)

func testRand() *rand.Rand {
	return rand.New(rand.NewSource(1))
}

func compileGraph(t *testing.T, graph string, spec *models.Spec, text map[string]string) map[string]any {
	t.Helper()
	res, err := Compile(context.Background(), Options{
		UIGraph:    []byte(graph),
		Spec:       spec,
		TextInputs: text,
		Rand:       testRand(),
	})
	require.NoError(t, err)
	return promptOf(t, res.Payload)
}

func promptOf(t *testing.T, payload map[string]any) map[string]any {
	t.Helper()
	prompt, ok := payload["prompt"].(map[string]any)
	require.True(t, ok, "payload must carry a prompt map")
	return prompt
}

func nodeInputs(t *testing.T, prompt map[string]any, id string) map[string]any {
	t.Helper()
	node, ok := prompt[id].(map[string]any)
	require.True(t, ok, "prompt must contain node %s", id)
	return node["inputs"].(map[string]any)
}

// A text binding lands on the bound node's named input in the executable graph.
func TestCompile_TextBinding(t *testing.T) {
	graph := `{
		"nodes": [
			{"id": 4, "type": "CLIPTextEncode",
			 "inputs": [{"name": "text", "type": "STRING", "widget": {"name": "text"}}],
			 "widgets_values": ["placeholder"],
			 "outputs": [{"name": "CONDITIONING", "type": "CONDITIONING", "links": [1]}]},
			{"id": 9, "type": "SaveImage",
			 "inputs": [{"name": "images", "type": "IMAGE", "link": 1}],
			 "widgets_values": ["output"]}
		],
		"links": [[1, 4, 0, 9, 0, "CONDITIONING"]]
	}`

	spec := &models.Spec{
		Inputs: models.SpecInputs{
			Text: []models.TextInput{
				{Key: "prompt", Binding: &models.Binding{NodeID: "4", Field: "text"}},
			},
		},
	}

	prompt := compileGraph(t, graph, spec, map[string]string{"prompt": "a red fox"})

	assert.Equal(t, "a red fox", nodeInputs(t, prompt, "4")["text"])
}

// A randomized seed is replaced per compile and the mode token never reaches
// the executable graph.
func TestCompile_SeedRandomize(t *testing.T) {
	graph := `{
		"nodes": [
			{"id": 2, "type": "RandomNoise",
			 "inputs": [{"name": "seed", "type": "INT", "widget": {"name": "seed"}}],
			 "widgets_values": [42, "randomize"],
			 "outputs": [{"name": "NOISE", "type": "NOISE", "links": [1]}]},
			{"id": 9, "type": "SaveImage",
			 "inputs": [{"name": "images", "type": "IMAGE", "link": 1}],
			 "widgets_values": ["output"]}
		],
		"links": [[1, 2, 0, 9, 0, "NOISE"]]
	}`

	spec := &models.Spec{}

	prompt := compileGraph(t, graph, spec, nil)
	inputs := nodeInputs(t, prompt, "2")

	seed, ok := inputs["seed"].(int64)
	require.True(t, ok, "seed must be an integer, got %T", inputs["seed"])
	assert.NotEqual(t, int64(42), seed)
	assert.NotContains(t, inputs, "control_after_generate")

	// reproducible with the same source
	again := compileGraph(t, graph, spec, nil)
	assert.Equal(t, seed, nodeInputs(t, again, "2")["seed"])
}

// Increment advances the stored seed exactly once.
func TestCompile_SeedIncrement(t *testing.T) {
	graph := `{
		"nodes": [
			{"id": 2, "type": "RandomNoise",
			 "inputs": [{"name": "seed", "type": "INT", "widget": {"name": "seed"}}],
			 "widgets_values": [42, "increment"],
			 "outputs": [{"name": "NOISE", "type": "NOISE", "links": [1]}]},
			{"id": 9, "type": "SaveImage",
			 "inputs": [{"name": "images", "type": "IMAGE", "link": 1}],
			 "widgets_values": ["output"]}
		],
		"links": [[1, 2, 0, 9, 0, "NOISE"]]
	}`

	prompt := compileGraph(t, graph, &models.Spec{}, nil)
	assert.Equal(t, int64(43), nodeInputs(t, prompt, "2")["seed"])
}

// Fixed seeds survive untouched.
func TestCompile_SeedFixed(t *testing.T) {
	graph := `{
		"nodes": [
			{"id": 2, "type": "RandomNoise",
			 "inputs": [{"name": "seed", "type": "INT", "widget": {"name": "seed"}}],
			 "widgets_values": [42, "fixed"],
			 "outputs": [{"name": "NOISE", "type": "NOISE", "links": [1]}]},
			{"id": 9, "type": "SaveImage",
			 "inputs": [{"name": "images", "type": "IMAGE", "link": 1}],
			 "widgets_values": ["output"]}
		],
		"links": [[1, 2, 0, 9, 0, "NOISE"]]
	}`

	prompt := compileGraph(t, graph, &models.Spec{}, nil)
	assert.Equal(t, float64(42), nodeInputs(t, prompt, "2")["seed"])
}

// A KSampler carries the seed-mode token mid-list: widgets_values holds one
// extra entry right after the seed. The token must be dropped, the seed
// rewritten, and every following widget must stay on its own port.
func TestCompile_SeedModeMidWidgetList(t *testing.T) {
	graph := `{
		"nodes": [
			{"id": 7, "type": "KSampler",
			 "inputs": [
				{"name": "seed", "type": "INT", "widget": {"name": "seed"}},
				{"name": "steps", "type": "INT", "widget": {"name": "steps"}},
				{"name": "cfg", "type": "FLOAT", "widget": {"name": "cfg"}},
				{"name": "sampler_name", "type": "COMBO", "widget": {"name": "sampler_name"}},
				{"name": "scheduler", "type": "COMBO", "widget": {"name": "scheduler"}},
				{"name": "denoise", "type": "FLOAT", "widget": {"name": "denoise"}}
			 ],
			 "widgets_values": [42, "randomize", 20, 7.5, "euler", "normal", 1.0],
			 "outputs": [{"name": "LATENT", "type": "LATENT", "links": [1]}]},
			{"id": 9, "type": "SaveImage",
			 "inputs": [{"name": "images", "type": "IMAGE", "link": 1}],
			 "widgets_values": ["output"]}
		],
		"links": [[1, 7, 0, 9, 0, "IMAGE"]]
	}`

	prompt := compileGraph(t, graph, &models.Spec{}, nil)
	inputs := nodeInputs(t, prompt, "7")

	seed, ok := inputs["seed"].(int64)
	require.True(t, ok, "seed must be an integer, got %T", inputs["seed"])
	assert.NotEqual(t, int64(42), seed)
	assert.NotContains(t, inputs, "control_after_generate")

	// widgets after the dropped token stay aligned with their ports
	assert.Equal(t, float64(20), inputs["steps"])
	assert.Equal(t, 7.5, inputs["cfg"])
	assert.Equal(t, "euler", inputs["sampler_name"])
	assert.Equal(t, "normal", inputs["scheduler"])
	assert.Equal(t, 1.0, inputs["denoise"])
}

// One seed source serves every submission in a process; compilations sharing
// it must be safe to run concurrently.
func TestCompile_ConcurrentSharedSeedSource(t *testing.T) {
	graph := `{
		"nodes": [
			{"id": 2, "type": "RandomNoise",
			 "inputs": [{"name": "seed", "type": "INT", "widget": {"name": "seed"}}],
			 "widgets_values": [42, "randomize"],
			 "outputs": [{"name": "NOISE", "type": "NOISE", "links": [1]}]},
			{"id": 9, "type": "SaveImage",
			 "inputs": [{"name": "images", "type": "IMAGE", "link": 1}],
			 "widgets_values": ["output"]}
		],
		"links": [[1, 2, 0, 9, 0, "NOISE"]]
	}`

	rng := NewSeedSource(1)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := Compile(context.Background(), Options{
				UIGraph: []byte(graph),
				Spec:    &models.Spec{},
				Rand:    rng,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
}

// A bypassed node disappears and its consumers are rewired to its upstream
// producer.
func TestCompile_BypassRewiring(t *testing.T) {
	graph := `{
		"nodes": [
			{"id": 1, "type": "CheckpointLoaderSimple",
			 "inputs": [{"name": "ckpt_name", "type": "COMBO", "widget": {"name": "ckpt_name"}}],
			 "widgets_values": ["sd15.safetensors"],
			 "outputs": [{"name": "MODEL", "type": "MODEL", "links": [1]}]},
			{"id": 5, "type": "LoraLoaderModelOnly", "mode": 4,
			 "inputs": [{"name": "model", "type": "MODEL", "link": 1}],
			 "widgets_values": ["style.safetensors", 0.8],
			 "outputs": [{"name": "MODEL", "type": "MODEL", "links": [2]}]},
			{"id": 7, "type": "KSampler",
			 "inputs": [{"name": "model", "type": "MODEL", "link": 2}],
			 "outputs": [{"name": "LATENT", "type": "LATENT", "links": [3]}]},
			{"id": 9, "type": "SaveImage",
			 "inputs": [{"name": "images", "type": "IMAGE", "link": 3}],
			 "widgets_values": ["output"]}
		],
		"links": [
			[1, 1, 0, 5, 0, "MODEL"],
			[2, 5, 0, 7, 0, "MODEL"],
			[3, 7, 0, 9, 0, "IMAGE"]
		]
	}`

	prompt := compileGraph(t, graph, &models.Spec{}, nil)

	assert.NotContains(t, prompt, "5")
	assert.Equal(t, []any{"1", 0}, nodeInputs(t, prompt, "7")["model"])
}

// A switch node forwards its lowest-numbered connected branch and is dropped
// from the executable graph.
func TestCompile_SwitchResolution(t *testing.T) {
	graph := `{
		"nodes": [
			{"id": 1, "type": "LoadImage",
			 "inputs": [{"name": "image", "type": "IMAGEUPLOAD", "widget": {"name": "image"}}],
			 "widgets_values": ["a.png"],
			 "outputs": [{"name": "IMAGE", "type": "IMAGE", "links": [1]}]},
			{"id": 2, "type": "LoadImage",
			 "inputs": [{"name": "image", "type": "IMAGEUPLOAD", "widget": {"name": "image"}}],
			 "widgets_values": ["b.png"],
			 "outputs": [{"name": "IMAGE", "type": "IMAGE", "links": [2]}]},
			{"id": 6, "type": "Any Switch (rgthree)",
			 "inputs": [
				{"name": "any_02", "type": "*", "link": 2},
				{"name": "any_01", "type": "*", "link": 1}
			 ],
			 "outputs": [{"name": "*", "type": "*", "links": [3]}]},
			{"id": 9, "type": "SaveImage",
			 "inputs": [{"name": "images", "type": "IMAGE", "link": 3}],
			 "widgets_values": ["output"]}
		],
		"links": [
			[1, 1, 0, 6, 1, "IMAGE"],
			[2, 2, 0, 6, 0, "IMAGE"],
			[3, 6, 0, 9, 0, "IMAGE"]
		]
	}`

	prompt := compileGraph(t, graph, &models.Spec{}, nil)

	assert.NotContains(t, prompt, "6")
	assert.Equal(t, []any{"1", 0}, nodeInputs(t, prompt, "9")["images"])
	// the losing branch is still reachable through nothing and must not run
	assert.NotContains(t, prompt, "2")
}

// A cycle of pass-through nodes cannot be resolved.
func TestCompile_BypassCycle(t *testing.T) {
	graph := `{
		"nodes": [
			{"id": 1, "type": "ImageScale", "mode": 4,
			 "inputs": [{"name": "image", "type": "IMAGE", "link": 2}],
			 "outputs": [{"name": "IMAGE", "type": "IMAGE", "links": [1]}]},
			{"id": 2, "type": "ImageScale", "mode": 4,
			 "inputs": [{"name": "image", "type": "IMAGE", "link": 1}],
			 "outputs": [{"name": "IMAGE", "type": "IMAGE", "links": [2, 3]}]},
			{"id": 9, "type": "SaveImage",
			 "inputs": [{"name": "images", "type": "IMAGE", "link": 3}],
			 "widgets_values": ["output"]}
		],
		"links": [
			[1, 1, 0, 2, 0, "IMAGE"],
			[2, 2, 0, 1, 0, "IMAGE"],
			[3, 2, 0, 9, 0, "IMAGE"]
		]
	}`

	_, err := Compile(context.Background(), Options{
		UIGraph: []byte(graph),
		Spec:    &models.Spec{},
		Rand:    testRand(),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidGraph)
}

// Nodes not reachable from an output are left out entirely.
func TestCompile_InactiveBranchDropped(t *testing.T) {
	graph := `{
		"nodes": [
			{"id": 1, "type": "LoadImage",
			 "inputs": [{"name": "image", "type": "IMAGEUPLOAD", "widget": {"name": "image"}}],
			 "widgets_values": ["a.png"],
			 "outputs": [{"name": "IMAGE", "type": "IMAGE", "links": [1]}]},
			{"id": 3, "type": "ImageInvert",
			 "inputs": [{"name": "image", "type": "IMAGE"}],
			 "outputs": [{"name": "IMAGE", "type": "IMAGE"}]},
			{"id": 9, "type": "SaveImage",
			 "inputs": [{"name": "images", "type": "IMAGE", "link": 1}],
			 "widgets_values": ["output"]}
		],
		"links": [[1, 1, 0, 9, 0, "IMAGE"]]
	}`

	prompt := compileGraph(t, graph, &models.Spec{}, nil)

	assert.Contains(t, prompt, "1")
	assert.Contains(t, prompt, "9")
	assert.NotContains(t, prompt, "3")
}

// A param binding pointed at a text target must not clobber the text value,
// regardless of application order.
func TestCompile_TextBindingProtected(t *testing.T) {
	graph := `{
		"nodes": [
			{"id": 4, "type": "CLIPTextEncode",
			 "inputs": [{"name": "text", "type": "STRING", "widget": {"name": "text"}}],
			 "widgets_values": [""],
			 "outputs": [{"name": "CONDITIONING", "type": "CONDITIONING", "links": [1]}]},
			{"id": 9, "type": "SaveImage",
			 "inputs": [{"name": "images", "type": "IMAGE", "link": 1}],
			 "widgets_values": ["output"]}
		],
		"links": [[1, 4, 0, 9, 0, "CONDITIONING"]]
	}`

	target := &models.Binding{NodeID: "4", Field: "text"}
	spec := &models.Spec{
		Inputs: models.SpecInputs{
			Text: []models.TextInput{{Key: "prompt", Binding: target}},
			Params: []models.ParamInput{
				{Key: "style", Type: "text", Default: "cinematic",
					Binding: &models.Binding{NodeID: "4", Field: "text"}},
			},
		},
	}

	prompt := compileGraph(t, graph, spec, map[string]string{"prompt": "a red fox"})

	assert.Equal(t, "a red fox", nodeInputs(t, prompt, "4")["text"])
}

// An unknown binding target fails compilation before anything is dispatched.
func TestCompile_BindingNotFound(t *testing.T) {
	graph := `{
		"nodes": [
			{"id": 9, "type": "SaveImage",
			 "inputs": [{"name": "images", "type": "IMAGE"}],
			 "widgets_values": ["output"]}
		],
		"links": []
	}`

	spec := &models.Spec{
		Inputs: models.SpecInputs{
			Text: []models.TextInput{
				{Key: "prompt", Binding: &models.Binding{NodeID: "404", Field: "text"}},
			},
		},
	}

	_, err := Compile(context.Background(), Options{
		UIGraph:    []byte(graph),
		Spec:       spec,
		TextInputs: map[string]string{"prompt": "x"},
		Rand:       testRand(),
	})
	assert.ErrorIs(t, err, apperrors.ErrBindingNotFound)
}

// Mode maps remap param values per mode and reject undeclared modes.
func TestCompile_ModeMappedParam(t *testing.T) {
	graph := `{
		"nodes": [
			{"id": 7, "type": "KSampler",
			 "inputs": [{"name": "steps", "type": "INT", "widget": {"name": "steps"}}],
			 "widgets_values": [20],
			 "outputs": [{"name": "LATENT", "type": "LATENT", "links": [1]}]},
			{"id": 9, "type": "SaveImage",
			 "inputs": [{"name": "images", "type": "IMAGE", "link": 1}],
			 "widgets_values": ["output"]}
		],
		"links": [[1, 7, 0, 9, 0, "IMAGE"]]
	}`

	spec := &models.Spec{
		Modes: []models.SpecMode{{ID: "fast"}, {ID: "quality"}},
		Inputs: models.SpecInputs{
			Params: []models.ParamInput{
				{Key: "steps", Type: "int",
					Binding: &models.Binding{
						NodeID: "7", Field: "steps",
						Map: map[string]any{"fast": 8, "quality": 40},
					}},
			},
		},
	}

	res, err := Compile(context.Background(), Options{
		UIGraph: []byte(graph),
		Spec:    spec,
		Mode:    "quality",
		Rand:    testRand(),
	})
	require.NoError(t, err)
	assert.Equal(t, 40, nodeInputs(t, promptOf(t, res.Payload), "7")["steps"])

	_, err = Compile(context.Background(), Options{
		UIGraph: []byte(graph),
		Spec:    spec,
		Mode:    "draft",
		Rand:    testRand(),
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidModeForKey)
}

// Field-map nodes pass their inputs through unchanged, with bindings applied
// by field name.
func TestCompile_FieldMapNode(t *testing.T) {
	graph := `{
		"nodes": [
			{"id": 3, "class_type": "EmptyLatentImage",
			 "inputs": {"width": 512, "height": 512, "batch_size": 1},
			 "outputs": [{"name": "LATENT", "type": "LATENT", "links": [1]}]},
			{"id": 9, "type": "SaveImage",
			 "inputs": [{"name": "images", "type": "IMAGE", "link": 1}],
			 "widgets_values": ["output"]}
		],
		"links": [[1, 3, 0, 9, 0, "IMAGE"]]
	}`

	spec := &models.Spec{
		Inputs: models.SpecInputs{
			Params: []models.ParamInput{
				{Key: "width", Type: "int", Default: 512,
					Binding: &models.Binding{NodeID: "3", Field: "width"}},
			},
		},
	}

	res, err := Compile(context.Background(), Options{
		UIGraph:     []byte(graph),
		Spec:        spec,
		ParamInputs: map[string]any{"width": 768},
		Rand:        testRand(),
	})
	require.NoError(t, err)

	inputs := nodeInputs(t, promptOf(t, res.Payload), "3")
	assert.Equal(t, int64(768), inputs["width"])
	assert.Equal(t, float64(512), inputs["height"])
}

// Out-of-list choices fall back to the param default.
func TestCompile_ParamChoices(t *testing.T) {
	graph := `{
		"nodes": [
			{"id": 7, "type": "KSampler",
			 "inputs": [{"name": "sampler_name", "type": "COMBO", "widget": {"name": "sampler_name"}}],
			 "widgets_values": ["euler"],
			 "outputs": [{"name": "LATENT", "type": "LATENT", "links": [1]}]},
			{"id": 9, "type": "SaveImage",
			 "inputs": [{"name": "images", "type": "IMAGE", "link": 1}],
			 "widgets_values": ["output"]}
		],
		"links": [[1, 7, 0, 9, 0, "IMAGE"]]
	}`

	spec := &models.Spec{
		Inputs: models.SpecInputs{
			Params: []models.ParamInput{
				{Key: "sampler", Type: "text", Default: "euler",
					Choices: []any{"euler", "dpmpp_2m"},
					Binding: &models.Binding{NodeID: "7", Field: "sampler_name"}},
			},
		},
	}

	res, err := Compile(context.Background(), Options{
		UIGraph:     []byte(graph),
		Spec:        spec,
		ParamInputs: map[string]any{"sampler": "not_a_sampler"},
		Rand:        testRand(),
	})
	require.NoError(t, err)
	assert.Equal(t, "euler", nodeInputs(t, promptOf(t, res.Payload), "7")["sampler_name"])
}

func TestNormalizeExtraPNGInfo(t *testing.T) {
	assert.Nil(t, NormalizeExtraPNGInfo(nil))

	dict := NormalizeExtraPNGInfo([]byte(`{"workflow": {"nodes": []}}`))
	require.NotNil(t, dict)
	assert.Contains(t, dict, "workflow")

	fromList := NormalizeExtraPNGInfo([]byte(`[{"workflow": {"nodes": []}}]`))
	require.NotNil(t, fromList)
	assert.Contains(t, fromList, "workflow")
}
