package oracleplugin

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/exec"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"
)

// Launch starts binaryPath as a child process and dispenses its
// Provider, mirroring internal/engine/registry.Loader.Load's
// plugin.NewClient → client.Client() → rpcClient.Dispense chain, but
// over the net/rpc transport instead of gRPC.
//
// The returned *plugin.Client must be stopped with Kill when the
// provider is no longer needed.
func Launch(binaryPath string, logger *slog.Logger) (Provider, *plugin.Client, error) {
	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig: Handshake,
		Plugins:         PluginMap,
		Cmd:             exec.Command(binaryPath),
		Logger:          newHclogAdapter(logger),
		AllowedProtocols: []plugin.Protocol{
			plugin.ProtocolNetRPC,
		},
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, nil, fmt.Errorf("oracleplugin: connect to %s: %w", binaryPath, err)
	}

	raw, err := rpcClient.Dispense("oracle")
	if err != nil {
		client.Kill()
		return nil, nil, fmt.Errorf("oracleplugin: dispense %s: %w", binaryPath, err)
	}

	provider, ok := raw.(Provider)
	if !ok {
		client.Kill()
		return nil, nil, fmt.Errorf("oracleplugin: %s does not implement Provider", binaryPath)
	}

	return provider, client, nil
}

// hclogAdapter adapts slog to hclog.Logger, since go-plugin wants an
// hclog.Logger for its own internal logging.
type hclogAdapter struct {
	logger *slog.Logger
	name   string
}

func newHclogAdapter(logger *slog.Logger) *hclogAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &hclogAdapter{logger: logger, name: "gcs"}
}

func (h *hclogAdapter) Log(level hclog.Level, msg string, args ...interface{}) {
	switch level {
	case hclog.Trace, hclog.Debug:
		h.logger.Debug(msg, args...)
	case hclog.Info:
		h.logger.Info(msg, args...)
	case hclog.Warn:
		h.logger.Warn(msg, args...)
	case hclog.Error:
		h.logger.Error(msg, args...)
	default:
		h.logger.Debug(msg, args...)
	}
}

func (h *hclogAdapter) Trace(msg string, args ...interface{}) { h.logger.Debug(msg, args...) }
func (h *hclogAdapter) Debug(msg string, args ...interface{}) { h.logger.Debug(msg, args...) }
func (h *hclogAdapter) Info(msg string, args ...interface{})  { h.logger.Info(msg, args...) }
func (h *hclogAdapter) Warn(msg string, args ...interface{})  { h.logger.Warn(msg, args...) }
func (h *hclogAdapter) Error(msg string, args ...interface{}) { h.logger.Error(msg, args...) }

func (h *hclogAdapter) IsTrace() bool { return false }
func (h *hclogAdapter) IsDebug() bool { return true }
func (h *hclogAdapter) IsInfo() bool  { return true }
func (h *hclogAdapter) IsWarn() bool  { return true }
func (h *hclogAdapter) IsError() bool { return true }

func (h *hclogAdapter) ImpliedArgs() []interface{} { return nil }

func (h *hclogAdapter) With(args ...interface{}) hclog.Logger { return h }

func (h *hclogAdapter) Name() string { return h.name }

func (h *hclogAdapter) Named(name string) hclog.Logger {
	return &hclogAdapter{logger: h.logger, name: h.name + "." + name}
}

func (h *hclogAdapter) ResetNamed(name string) hclog.Logger {
	return &hclogAdapter{logger: h.logger, name: name}
}

func (h *hclogAdapter) SetLevel(level hclog.Level) {}

func (h *hclogAdapter) GetLevel() hclog.Level { return hclog.Debug }

func (h *hclogAdapter) StandardLogger(opts *hclog.StandardLoggerOptions) *log.Logger {
	return log.Default()
}

func (h *hclogAdapter) StandardWriter(opts *hclog.StandardLoggerOptions) io.Writer {
	return os.Stderr
}
