package usage

import domusage "github.com/kailas-cloud/modelmux/internal/domain/usage"

// Source supplies the raw accounting records.
type Source interface {
	Snapshot() []domusage.Record
}
