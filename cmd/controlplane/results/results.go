// Package results flattens the worker's history output into the artifact
// list the UI renders. Workers and custom nodes disagree on the envelope
// shape, so normalization accepts every variant seen in the wild.
package results

import (
	"sort"
)

// Artifact is one produced file reference, addressable through the
// worker's view endpoint.
type Artifact struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// Normalize flattens a stored job result into {"images": [...]}.
//
// Accepted shapes:
//
//	{"images": [...]}                          already flat
//	{"outputs": {"12": {"images": [...]}}}     history envelope
//	{"12": {"images": [...]}}                  bare node map
//
// Unknown or empty input yields an empty artifact list, never nil.
func Normalize(raw map[string]any) map[string]any {
	artifacts := extract(raw)

	images := make([]any, 0, len(artifacts))
	for _, a := range artifacts {
		images = append(images, map[string]any{
			"filename":  a.Filename,
			"subfolder": a.Subfolder,
			"type":      a.Type,
		})
	}
	return map[string]any{"images": images}
}

func extract(raw map[string]any) []Artifact {
	if raw == nil {
		return nil
	}

	if images, ok := raw["images"].([]any); ok {
		return artifactsFromList(images)
	}

	if outputs, ok := raw["outputs"].(map[string]any); ok {
		return artifactsFromNodeMap(outputs)
	}

	return artifactsFromNodeMap(raw)
}

// artifactsFromNodeMap walks node_id -> payload entries in sorted id order
// so repeated normalization of the same result is stable.
func artifactsFromNodeMap(nodes map[string]any) []Artifact {
	ids := make([]string, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []Artifact
	for _, id := range ids {
		payload, ok := nodes[id].(map[string]any)
		if !ok {
			continue
		}
		images, ok := payload["images"].([]any)
		if !ok {
			continue
		}
		out = append(out, artifactsFromList(images)...)
	}
	return out
}

func artifactsFromList(items []any) []Artifact {
	var out []Artifact
	for _, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		filename, _ := item["filename"].(string)
		if filename == "" {
			continue
		}
		subfolder, _ := item["subfolder"].(string)
		kind, _ := item["type"].(string)
		if kind == "" {
			kind = "output"
		}
		out = append(out, Artifact{Filename: filename, Subfolder: subfolder, Type: kind})
	}
	return out
}
