// Package plugins is the table of extractors built into the host.
package plugins

import (
	"github.com/maastricht-university/vamphost/extractor"
	"github.com/maastricht-university/vamphost/plugins/spectrum"
	"github.com/maastricht-university/vamphost/plugins/stub"
	"github.com/maastricht-university/vamphost/plugins/zerocrossings"
)

// Default returns every built-in extractor, example library first.
func Default() []extractor.Factory {
	return append([]extractor.Factory{
		{Metadata: zerocrossings.Metadata, New: zerocrossings.New},
		{Metadata: spectrum.Metadata, New: spectrum.New},
	}, stub.Factories()...)
}
