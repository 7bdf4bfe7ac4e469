package service

import (
	"github.com/maastricht-university/vamphost/extractor"
	"github.com/maastricht-university/vamphost/feature"
)

// Handle identifies one loaded extractor instance. Handles are never reused.
type Handle uint64

type ListRequest struct {
	// From restricts the listing to these libraries. Empty means all.
	From []string `json:"from,omitempty"`
}

type ListResponse struct {
	Available []extractor.StaticData `json:"available"`
}

type LoadRequest struct {
	Key             string                  `json:"key"`
	InputSampleRate float64                 `json:"inputSampleRate"`
	AdapterFlags    []extractor.AdapterFlag `json:"adapterFlags,omitempty"`
}

type LoadResponse struct {
	Handle               Handle                  `json:"handle"`
	StaticData           extractor.StaticData    `json:"staticData"`
	DefaultConfiguration extractor.Configuration `json:"defaultConfiguration"`
}

type ConfigurationRequest struct {
	Handle        Handle                  `json:"handle"`
	Configuration extractor.Configuration `json:"configuration"`
}

type ConfigurationResponse struct {
	Handle     Handle                       `json:"handle"`
	OutputList []extractor.OutputDescriptor `json:"outputList"`
	Framing    extractor.Framing            `json:"framing"`
}

type ProcessRequest struct {
	Handle       Handle                 `json:"handle"`
	ProcessInput extractor.ProcessInput `json:"processInput"`
}

type ProcessResponse struct {
	Handle   Handle       `json:"handle"`
	Features *feature.Set `json:"features"`
}

type FinishRequest struct {
	Handle Handle `json:"handle"`
}

type FinishResponse = ProcessResponse
