package telemetry

import (
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/sdk/trace"
)

// createSampler maps the OTEL_TRACES_SAMPLER names onto SDK samplers.
// Unknown names sample everything.
func createSampler(cfg *Config) trace.Sampler {
	name, parentBased := strings.CutPrefix(cfg.Sampler, "parentbased_")

	var s trace.Sampler
	switch name {
	case "always_off":
		s = trace.NeverSample()
	case "traceidratio":
		s = trace.TraceIDRatioBased(parseRatio(cfg.SamplerArg))
	default:
		s = trace.AlwaysSample()
	}
	if parentBased {
		return trace.ParentBased(s)
	}
	return s
}

// parseRatio clamps the ratio to [0, 1]; unparsable input means 1.
func parseRatio(s string) float64 {
	ratio, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 1.0
	}
	return min(max(ratio, 0), 1)
}
