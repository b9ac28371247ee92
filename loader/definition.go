package loader

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/ukhas/habitat-sub001/errors"
	"github.com/ukhas/habitat-sub001/metric"
	"github.com/ukhas/habitat-sub001/natsclient"
	"github.com/ukhas/habitat-sub001/sink"
)

// Dependencies provides the shared resources a factory may need
type Dependencies struct {
	Settings        json.RawMessage         // Per-sink settings from configuration (can be nil)
	NATSClient      *natsclient.Client      // NATS client for forwarding sinks (can be nil)
	MetricsRegistry *metric.MetricsRegistry // Metrics registry for Prometheus (can be nil)
	Logger          *slog.Logger            // Structured logger (can be nil, defaults to slog.Default())
}

// GetLogger returns the configured logger or a default logger if none is provided
func (d *Dependencies) GetLogger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// GetLoggerWithComponent returns a logger configured with component context
func (d *Dependencies) GetLoggerWithComponent(componentName string) *slog.Logger {
	return d.GetLogger().With("component", componentName)
}

// DecodeSettings unmarshals Settings into v. Empty settings leave v untouched.
func (d *Dependencies) DecodeSettings(v any) error {
	if len(d.Settings) == 0 || string(d.Settings) == "null" {
		return nil
	}
	if err := json.Unmarshal(d.Settings, v); err != nil {
		return errors.WrapInvalid(err, "Dependencies", "DecodeSettings", "settings parse")
	}
	return nil
}

// BuiltinModule is the module the bundled sinks register under.
const BuiltinModule = "habitat.sinks"

// Factory creates a handler instance. The factory should not start work;
// the sink runs Setup once it is wrapped.
type Factory func(deps Dependencies) (sink.Handler, error)

// Definition describes a sink implementation under a qualified name.
type Definition struct {
	Module      string          `json:"module"`
	Member      string          `json:"member"`
	Discipline  sink.Discipline `json:"-"`
	Factory     Factory         `json:"-"`
	Description string          `json:"description"`
}

// FullName returns "module.member".
func (d *Definition) FullName() string {
	return d.Module + "." + d.Member
}

// Validate checks the definition describes a usable sink type. All
// failures are value kind.
func (d *Definition) Validate() error {
	if err := ValidateName(d.Module); err != nil {
		return err
	}
	if d.Member == "" || strings.Contains(d.Member, ".") {
		return errors.Newf(errors.ErrValueKind, "Definition", "Validate", "invalid member name %q", d.Member)
	}
	if d.Factory == nil {
		return errors.Newf(errors.ErrValueKind, "Definition", "Validate", "%s has no factory", d.FullName())
	}
	if !d.Discipline.Valid() {
		return errors.Newf(errors.ErrValueKind, "Definition", "Validate",
			"%s has invalid discipline %d", d.FullName(), int(d.Discipline))
	}
	return nil
}

// Instantiate runs the factory. A nil handler is a value-kind error.
func (d *Definition) Instantiate(deps Dependencies) (sink.Handler, error) {
	h, err := d.Factory(deps)
	if err != nil {
		return nil, errors.Wrap(err, "Definition", "Instantiate", d.FullName()+" factory")
	}
	if h == nil {
		return nil, errors.Newf(errors.ErrValueKind, "Definition", "Instantiate", "%s factory returned no handler", d.FullName())
	}
	return h, nil
}

// ValidateName checks a dotted name has no empty components.
func ValidateName(name string) error {
	if name == "" {
		return errors.Newf(errors.ErrValueKind, "loader", "ValidateName", "empty name")
	}
	for _, part := range strings.Split(name, ".") {
		if part == "" {
			return errors.Newf(errors.ErrValueKind, "loader", "ValidateName", "name %q has an empty component", name)
		}
	}
	return nil
}
