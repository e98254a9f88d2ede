package oracle

import (
	"log/slog"

	"github.com/hashicorp/go-plugin"

	"github.com/gcssync/gcs/internal/core/civil"
	"github.com/gcssync/gcs/internal/core/model"
	"github.com/gcssync/gcs/internal/oracleplugin"
)

// PluginOracle is a process-isolated HolidayResolver/SolarOracle pair
// backed by an operator-supplied binary speaking the
// internal/oracleplugin.Provider protocol. It exists so an operator
// who wants a different holiday calendar or a more precise
// astronomical model than FixedHolidayTable/SolarCalculator doesn't
// have to fork this module — they ship a separate process instead.
type PluginOracle struct {
	provider oracleplugin.Provider
	client   *plugin.Client
}

// LoadPluginOracle launches binaryPath as a child process and returns
// a ready-to-use PluginOracle. Close must be called to stop the child
// process once the oracle is no longer needed.
func LoadPluginOracle(binaryPath string, logger *slog.Logger) (*PluginOracle, error) {
	provider, client, err := oracleplugin.Launch(binaryPath, logger)
	if err != nil {
		return nil, err
	}
	return &PluginOracle{provider: provider, client: client}, nil
}

// Close stops the plugin child process.
func (o *PluginOracle) Close() {
	if o.client != nil {
		o.client.Kill()
	}
}

// Holidays returns an intent.HolidayResolver backed by this plugin.
func (o *PluginOracle) Holidays() PluginHolidayResolver {
	return PluginHolidayResolver{provider: o.provider}
}

// Solar returns an intent.SolarOracle backed by this plugin.
func (o *PluginOracle) Solar() PluginSolarOracle {
	return PluginSolarOracle{provider: o.provider}
}

// PluginHolidayResolver implements intent.HolidayResolver over a
// plugin connection.
type PluginHolidayResolver struct {
	provider oracleplugin.Provider
}

// Resolve delegates to the plugin process.
func (r PluginHolidayResolver) Resolve(name string, year int) (civil.Date, error) {
	return r.provider.ResolveHoliday(name, year)
}

// PluginSolarOracle implements intent.SolarOracle over a plugin
// connection.
type PluginSolarOracle struct {
	provider oracleplugin.Provider
}

// Resolve delegates to the plugin process.
func (r PluginSolarOracle) Resolve(date civil.Date, lat, lon float64, kind model.SolarKind, offsetMin int) (civil.Time, error) {
	return r.provider.ResolveSolar(date, lat, lon, kind, offsetMin)
}
