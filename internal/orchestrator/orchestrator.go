// Package orchestrator is the composition root: it constructs every
// component with the references it needs and exposes the operations the
// command surface calls into. Grounded on the design note calling for a
// named component with explicit init/shutdown and references passed
// through a single root rather than a shared global registry.
package orchestrator

import (
	"context"
	"path/filepath"
	"time"

	"github.com/skiffhost/skiffd/internal/catalog"
	"github.com/skiffhost/skiffd/internal/config"
	"github.com/skiffhost/skiffd/internal/environment"
	skifferrors "github.com/skiffhost/skiffd/internal/errors"
	"github.com/skiffhost/skiffd/internal/eventbus"
	"github.com/skiffhost/skiffd/internal/installer"
	"github.com/skiffhost/skiffd/internal/integrator"
	"github.com/skiffhost/skiffd/internal/manifest"
	"github.com/skiffhost/skiffd/internal/models"
	"github.com/skiffhost/skiffd/internal/paths"
	"github.com/skiffhost/skiffd/internal/platform"
	"github.com/skiffhost/skiffd/internal/resources"
	"github.com/skiffhost/skiffd/internal/serverdetect"
	"github.com/skiffhost/skiffd/internal/shell"
	"github.com/skiffhost/skiffd/internal/store"
	"github.com/skiffhost/skiffd/internal/supervisor"
	"github.com/skiffhost/skiffd/internal/tunnel"
	"github.com/skiffhost/skiffd/internal/urlmanager"
)

// Orchestrator owns every component and wires their cross-references.
type Orchestrator struct {
	Config *config.Config

	Profile     *models.PlatformProfile
	PathMapper  *paths.Mapper
	Probe       *resources.Probe
	Executor    *shell.Executor
	Scanner     *manifest.Scanner
	EnvManager  *environment.Manager
	Installer   *installer.Installer
	Store       *store.Store
	Supervisor  *supervisor.Supervisor
	ServerScan  *serverdetect.Detector
	Integrator  *integrator.Integrator
	Tunnels     *tunnel.Adapter
	URLs        *urlmanager.Manager
	Bus         *eventbus.Bus
	Catalog     *catalog.Catalog
}

// New performs the full startup sequence: detect platform, map paths,
// open the state store, and construct every component in dependency
// order.
func New(ctx context.Context, cfg *config.Config, tunnelProviders ...tunnel.Provider) (*Orchestrator, error) {
	profile := platform.NewDetector().Detect(ctx)

	mapper := paths.NewMapper(profile)
	for _, kind := range []models.PathKind{models.PathApps, models.PathData, models.PathLogs, models.PathCache} {
		base, err := mapper.Map(kind, "")
		if err != nil {
			if err == paths.ErrForbidden {
				continue
			}
			return nil, err
		}
		if err := mapper.Ensure(base); err != nil {
			return nil, err
		}
	}

	stateDir := filepath.Join(cfg.BasePath, "state")
	st, err := store.Open(stateDir, cfg.State.SnapshotEvery)
	if err != nil {
		return nil, err
	}

	bus := eventbus.New(filepath.Join(stateDir, "events.ring"), cfg.Event.RingCapacity)

	executor := shell.NewExecutor()
	gpu := resources.NewGPUSampler(executor)
	probe := resources.NewProbe("/", gpu)

	envRoot := filepath.Join(cfg.BasePath, "envs")
	envMgr := environment.NewManager(executor, envRoot)
	scanner := manifest.NewScanner()

	receiptsDir := filepath.Join(stateDir, "install-receipts")
	inst := installer.New(executor, scanner, envMgr, st, bus, receiptsDir, cfg.Install.Strictness)

	sup := supervisor.New(st, bus, probe, cfg.Supervisor.GraceSeconds, cfg.Supervisor.MaxConcurrentApps)

	serverScanner := serverdetect.NewDetector(sup)

	fwIntegrator := integrator.New()

	tunnelAdapter := tunnel.NewAdapter(tunnelProviders...)
	urlMgr := urlmanager.NewManager(tunnelAdapter, bus)

	cat := catalog.New(filepath.Join(cfg.BasePath, cfg.CatalogPath))
	_, _ = cat.Load() // absent catalog is not fatal: apps installed by URL still work

	o := &Orchestrator{
		Config:     cfg,
		Profile:    profile,
		PathMapper: mapper,
		Probe:      probe,
		Executor:   executor,
		Scanner:    scanner,
		EnvManager: envMgr,
		Installer:  inst,
		Store:      st,
		Supervisor: sup,
		ServerScan: serverScanner,
		Integrator: fwIntegrator,
		Tunnels:    tunnelAdapter,
		URLs:       urlMgr,
		Bus:        bus,
		Catalog:    cat,
	}

	sup.SetRestartHook(o.restartCrashedApp)

	return o, nil
}

// Start begins the periodic background loops: resource sampling, server
// detection, and URL health polling.
func (o *Orchestrator) Start(ctx context.Context) {
	o.Probe.Start(ctx, o.Config.MonitoringInterval(), func(sample models.SystemSample) {
		o.publishResourceAlerts(sample)
	})
	o.ServerScan.StartMonitor(ctx, 5*time.Second, func(servers []models.DetectedServer) {
		for _, s := range servers {
			o.Bus.Publish(models.EventServerDetected, "serverdetect", models.ServerDetectedPayload{
				Port: s.Port, Framework: s.Framework, OwningAppID: s.OwningAppID,
			})
		}
	})
	o.URLs.StartPolling(ctx, time.Duration(o.Config.URL.HealthIntervalSeconds)*time.Second)
}

// Shutdown stops every background loop and flushes the state store.
func (o *Orchestrator) Shutdown() error {
	o.Probe.Stop()
	o.ServerScan.Stop()
	o.URLs.Stop()
	return o.Store.Close()
}

func (o *Orchestrator) publishResourceAlerts(sample models.SystemSample) {
	th := o.Config.Resources.Thresholds
	check := func(resource string, value, warning, critical float64) {
		switch {
		case value >= critical:
			o.Bus.Publish(models.EventResourceAlert, "resources", models.ResourceAlertPayload{Resource: resource, Value: value, Severity: "critical"})
		case value >= warning:
			o.Bus.Publish(models.EventResourceAlert, "resources", models.ResourceAlertPayload{Resource: resource, Value: value, Severity: "warning"})
		}
	}
	check("cpu", sample.CPUPercent, th.CPU.Warning, th.CPU.Critical)
	if sample.MemTotalBytes > 0 {
		check("memory", 100*float64(sample.MemUsedBytes)/float64(sample.MemTotalBytes), th.Memory.Warning, th.Memory.Critical)
	}
	if sample.DiskTotalBytes > 0 {
		check("disk", 100*float64(sample.DiskUsedBytes)/float64(sample.DiskTotalBytes), th.Disk.Warning, th.Disk.Critical)
	}
	if sample.GPU != nil && sample.GPU.MemTotalMB > 0 {
		check("gpu", sample.GPU.UtilPercent, th.GPU.Warning, th.GPU.Critical)
	}
}

// restartCrashedApp rebuilds a LaunchSpec for appID from its AppRecord
// and relaunches it. Registered as the Supervisor's restart hook since
// only the orchestrator knows how to reconstruct launch arguments.
func (o *Orchestrator) restartCrashedApp(appID string) {
	rec, ok := o.Store.Get(appID)
	if !ok {
		return
	}
	ctx := context.Background()
	interpreterPath, _, err := o.EnvManager.Resolve(rec.EnvPath, rec.EnvKind)
	if err != nil {
		return
	}
	_, _ = o.Supervisor.Launch(ctx, supervisor.LaunchSpec{
		AppID:      appID,
		Command:    []string{interpreterPath, "app.py"},
		WorkingDir: rec.InstallPath,
		Mode:       supervisor.ModeDaemon,
	})
}

// InstallApp resolves catalog metadata (if any), derives install and env
// paths under the active profile, and drives the Installer.
func (o *Orchestrator) InstallApp(ctx context.Context, appID, sourceURL string) error {
	name := appID
	if entry, ok := o.Catalog.Get(appID); ok {
		name = entry.Name
		if sourceURL == "" {
			sourceURL = entry.SourceURL
		}
	}
	if sourceURL == "" {
		return skifferrors.New(skifferrors.KindConfiguration, "orchestrator", "no source_url for "+appID, nil)
	}

	appsBase, err := o.PathMapper.Map(models.PathApps, "")
	if err != nil {
		return err
	}
	installPath := filepath.Join(appsBase, appID)
	envBase, err := o.PathMapper.Map(models.PathData, filepath.Join("envs", appID))
	if err != nil {
		return err
	}

	if _, exists := o.Store.Get(appID); !exists {
		if err := o.Store.Put(&models.AppRecord{
			ID: appID, Name: name, SourceURL: sourceURL,
			Status: models.StatusNotInstalled, MaxRestarts: o.Config.Supervisor.MaxRestarts,
			CreatedAt: time.Now(),
		}); err != nil {
			return err
		}
	}

	return o.Installer.Run(ctx, installer.Request{
		AppID: appID, SourceURL: sourceURL, InstallPath: installPath,
		EnvPath: envBase, EnvKind: models.EnvIsolatedPython,
	})
}

// StartApp enables framework integration (if a known launch script is
// found) and launches appID as a supervised daemon process.
func (o *Orchestrator) StartApp(ctx context.Context, appID string) (*models.ProcessHandle, error) {
	rec, ok := o.Store.Get(appID)
	if !ok {
		return nil, skifferrors.New(skifferrors.KindConfiguration, "orchestrator", "unknown app "+appID, nil)
	}

	if plan, err := o.Integrator.Detect(ctx, rec.InstallPath); err == nil && len(plan.Files) > 0 {
		_, _ = o.Integrator.Enable(ctx, plan)
	}

	interpreterPath, _, err := o.EnvManager.Resolve(rec.EnvPath, rec.EnvKind)
	if err != nil {
		return nil, err
	}

	return o.Supervisor.Launch(ctx, supervisor.LaunchSpec{
		AppID:      appID,
		Command:    []string{interpreterPath, "app.py"},
		WorkingDir: rec.InstallPath,
		Mode:       supervisor.ModeDaemon,
	})
}

// StopApp stops appID's process group.
func (o *Orchestrator) StopApp(appID string, force bool) bool {
	return o.Supervisor.Stop(appID, force)
}

// OpenTunnelForApp asks the Server Detector for appID's bound port (it
// must own one before a tunnel is opened, per the "no auto-tunnel for
// unowned servers" rule), opens a tunnel, and registers it with the URL
// Manager.
func (o *Orchestrator) OpenTunnelForApp(ctx context.Context, appID, providerName string) (*models.URLRecord, error) {
	running := false
	for _, h := range o.Supervisor.ListRunning() {
		if h.AppID == appID {
			running = true
			break
		}
	}
	if !running {
		return nil, skifferrors.New(skifferrors.KindConfiguration, "orchestrator", "app not running: "+appID, nil)
	}

	var boundPort int
	for _, s := range o.ServerScan.Scan(ctx, nil) {
		if s.OwningAppID == appID {
			boundPort = s.Port
			break
		}
	}
	if boundPort == 0 {
		return nil, skifferrors.New(skifferrors.KindConfiguration, "orchestrator", "no owned server detected for "+appID, nil)
	}

	record, err := o.Tunnels.Open(ctx, appID, boundPort, providerName, nil)
	if err != nil {
		return nil, err
	}
	return o.URLs.Register(*record)
}

// CloseTunnel closes tunnelID and unregisters its URLRecord.
func (o *Orchestrator) CloseTunnel(ctx context.Context, tunnelID string) bool {
	closed := o.Tunnels.Close(ctx, tunnelID)
	o.URLs.Unregister(tunnelID)
	return closed
}
