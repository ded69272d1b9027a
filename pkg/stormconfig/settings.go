package stormconfig

import (
	"fmt"
	"time"

	"github.com/fluxorio/stormsocket/pkg/storm"
)

// FileSettings is the on-disk (YAML/JSON) shape of a Backend's
// configuration, plus the ambient fields (TLS material, audit driver
// selection, metrics/event-relay endpoints) SPEC_FULL.md's AMBIENT STACK
// and DOMAIN STACK sections call for but storm.Settings itself has no
// reason to know about.
type FileSettings struct {
	HeapSize       int `yaml:"heap_size" json:"heap_size"`
	BlockSize      int `yaml:"block_size" json:"block_size"`
	MaxConnections int `yaml:"max_connections" json:"max_connections"`

	MaxPendingOutgoingPacketsPerConnection int `yaml:"max_pending_outgoing_packets_per_connection" json:"max_pending_outgoing_packets_per_connection"`
	MaxPendingFreeingPacketsPerConnection  int `yaml:"max_pending_freeing_packets_per_connection" json:"max_pending_freeing_packets_per_connection"`
	MaxSendQueueElements                   int `yaml:"max_send_queue_elements" json:"max_send_queue_elements"`

	NumSendThreads int `yaml:"num_send_threads" json:"num_send_threads"`
	NumIOThreads   int `yaml:"num_io_threads" json:"num_io_threads"`

	CloseQueueSize   int `yaml:"close_queue_size" json:"close_queue_size"`
	RecvBufferBlocks int `yaml:"recv_buffer_blocks" json:"recv_buffer_blocks"`

	SynchronousAudit bool          `yaml:"synchronous_audit" json:"synchronous_audit"`
	AuditTimeout     time.Duration `yaml:"audit_timeout" json:"audit_timeout"`

	// Ambient fields: not part of storm.Settings, consumed by the binary
	// wiring a Backend together with its TLS material, audit sink, metrics
	// namespace and event relay.
	TLSCertFile      string `yaml:"tls_cert_file" json:"tls_cert_file"`
	TLSKeyFile       string `yaml:"tls_key_file" json:"tls_key_file"`
	AuditDriver      string `yaml:"audit_driver" json:"audit_driver"` // "postgres", "sqlite", or "" (disabled)
	AuditDSN         string `yaml:"audit_dsn" json:"audit_dsn"`
	MetricsNamespace string `yaml:"metrics_namespace" json:"metrics_namespace"`
	NATSURL          string `yaml:"nats_url" json:"nats_url"`
}

// DefaultFileSettings mirrors storm.DefaultSettings plus empty ambient
// fields (TLS/audit/metrics/NATS all disabled by default).
func DefaultFileSettings() FileSettings {
	d := storm.DefaultSettings()
	return FileSettings{
		HeapSize:                                d.HeapSize,
		BlockSize:                                d.BlockSize,
		MaxConnections:                           d.MaxConnections,
		MaxPendingOutgoingPacketsPerConnection:    d.MaxPendingOutgoingPacketsPerConnection,
		MaxPendingFreeingPacketsPerConnection:     d.MaxPendingFreeingPacketsPerConnection,
		MaxSendQueueElements:                      d.MaxSendQueueElements,
		NumSendThreads:                            d.NumSendThreads,
		NumIOThreads:                              d.NumIOThreads,
		CloseQueueSize:                            d.CloseQueueSize,
		RecvBufferBlocks:                          d.RecvBufferBlocks,
		SynchronousAudit:                          d.SynchronousAudit,
		AuditTimeout:                              d.AuditTimeout,
	}
}

// ToSettings projects the file-loaded fields onto a storm.Settings,
// discarding the ambient fields a Backend itself has no use for.
func (f FileSettings) ToSettings() storm.Settings {
	return storm.Settings{
		HeapSize:                               f.HeapSize,
		BlockSize:                               f.BlockSize,
		MaxConnections:                          f.MaxConnections,
		MaxPendingOutgoingPacketsPerConnection:   f.MaxPendingOutgoingPacketsPerConnection,
		MaxPendingFreeingPacketsPerConnection:    f.MaxPendingFreeingPacketsPerConnection,
		MaxSendQueueElements:                     f.MaxSendQueueElements,
		NumSendThreads:                           f.NumSendThreads,
		NumIOThreads:                             f.NumIOThreads,
		CloseQueueSize:                           f.CloseQueueSize,
		RecvBufferBlocks:                         f.RecvBufferBlocks,
		SynchronousAudit:                         f.SynchronousAudit,
		AuditTimeout:                             f.AuditTimeout,
	}
}

// LoadBackendSettings loads FileSettings from path (YAML or JSON,
// STORMSOCKET_-prefixed env overrides applied), validates it, and returns
// both the raw file shape (for the ambient fields) and the projected
// storm.Settings.
func LoadBackendSettings(path string) (FileSettings, storm.Settings, error) {
	fs := DefaultFileSettings()
	if err := LoadWithEnv(path, EnvPrefix, &fs); err != nil {
		return FileSettings{}, storm.Settings{}, err
	}

	err := Validate(&fs,
		RangeValidator("BlockSize", 1, 1<<20),
		RangeValidator("MaxConnections", 1, 1<<24),
		RangeValidator("NumSendThreads", 1, 256),
		RangeValidator("NumIOThreads", 1, 256),
	)
	if err != nil {
		return FileSettings{}, storm.Settings{}, fmt.Errorf("stormconfig: %w", err)
	}
	if fs.AuditDriver != "" {
		if err := Validate(&fs, OneOfValidator("AuditDriver", "postgres", "sqlite")); err != nil {
			return FileSettings{}, storm.Settings{}, fmt.Errorf("stormconfig: %w", err)
		}
	}

	return fs, fs.ToSettings(), nil
}
