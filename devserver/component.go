package devserver

import (
	"context"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/kbukum/wasmfetch/component"
)

const componentName = "devserver"

var (
	_ component.Component     = (*Component)(nil)
	_ component.Describable   = (*Component)(nil)
	_ component.RouteProvider = (*Component)(nil)
)

// Component runs a Server under the component registry.
type Component struct {
	server  *Server
	running atomic.Bool
}

// NewComponent returns a component backed by s.
func NewComponent(s *Server) *Component {
	return &Component{server: s}
}

// Name returns the component name.
func (sc *Component) Name() string { return componentName }

// Start starts the server.
func (sc *Component) Start(ctx context.Context) error {
	if err := sc.server.Start(ctx); err != nil {
		return err
	}
	sc.running.Store(true)
	return nil
}

// Stop shuts the server down.
func (sc *Component) Stop(ctx context.Context) error {
	sc.running.Store(false)
	return sc.server.Stop(ctx)
}

// Health reports whether the server is serving.
func (sc *Component) Health(_ context.Context) component.Health {
	if sc.running.Load() {
		return component.Health{Name: componentName, Status: component.StatusHealthy}
	}
	return component.Health{Name: componentName, Status: component.StatusUnhealthy, Message: "not serving"}
}

// Describe returns the listen address and static directory.
func (sc *Component) Describe() component.Description {
	cfg := sc.server.config
	details := sc.server.Addr()
	if cfg.StaticDir != "" {
		details += " static=" + cfg.StaticDir
	}
	return component.Description{
		Name:    "Fixture Server",
		Type:    "server",
		Details: details,
		Port:    cfg.Port,
	}
}

// Routes returns the registered routes, fixtures first and /health last.
func (sc *Component) Routes() []component.Route {
	ginRoutes := sc.server.engine.Routes()
	sort.Slice(ginRoutes, func(i, j int) bool {
		iSys, jSys := ginRoutes[i].Path == "/health", ginRoutes[j].Path == "/health"
		if iSys != jSys {
			return !iSys
		}
		if ginRoutes[i].Path != ginRoutes[j].Path {
			return ginRoutes[i].Path < ginRoutes[j].Path
		}
		return ginRoutes[i].Method < ginRoutes[j].Method
	})

	routes := make([]component.Route, 0, len(ginRoutes))
	for _, r := range ginRoutes {
		routes = append(routes, component.Route{
			Method:  r.Method,
			Path:    r.Path,
			Handler: formatHandlerName(r.Handler),
		})
	}
	return routes
}

// formatHandlerName shortens gin's handler names, e.g.
// "github.com/kbukum/wasmfetch/devserver.(*Server).echo-fm" to "Server.echo".
func formatHandlerName(full string) string {
	name := strings.TrimSuffix(full, "-fm")
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	name = strings.NewReplacer("(*", "", ")", "").Replace(name)
	if _, rest, ok := strings.Cut(name, "."); ok && rest != "" {
		name = rest
	}
	return name
}
