package addrgo

import (
	"github.com/hupe1980/addrgo/agent"
	"github.com/hupe1980/addrgo/bundle"
	"github.com/hupe1980/addrgo/manifest"
)

// The full error taxonomy of the module, unified at the root for callers that
// do not want to import the individual subpackages. All values compare with
// errors.Is against errors returned anywhere in addrgo.
var (
	// ErrManifestUnavailable is returned when the version manifest cannot be
	// fetched from the origin.
	ErrManifestUnavailable = manifest.ErrUnavailable

	// ErrManifestMalformed is returned when a fetched manifest is missing
	// required fields.
	ErrManifestMalformed = manifest.ErrMalformed

	// ErrFetchFailed is returned when a bundle body cannot be retrieved.
	ErrFetchFailed = bundle.ErrFetchFailed

	// ErrDecompressFailed is returned when a fetched bundle body is not valid
	// gzip data.
	ErrDecompressFailed = bundle.ErrDecompressFailed

	// ErrParseFailed is returned when a decompressed bundle body cannot be
	// decoded or fails validation.
	ErrParseFailed = bundle.ErrParseFailed

	// ErrAgentUnavailable is returned when the persistent cache agent is not
	// registered or the host lacks the capability.
	ErrAgentUnavailable = agent.ErrUnavailable

	// ErrAgentTimeout is returned when the agent does not answer a message
	// within the configured budget. Distinct from ErrAgentReportedFailure.
	ErrAgentTimeout = agent.ErrTimeout

	// ErrAgentReportedFailure is returned when the agent answered with an
	// unsuccessful response.
	ErrAgentReportedFailure = agent.ErrReportedFailure
)
