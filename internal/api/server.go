package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"ticketdesk/internal/types"
)

// healthCheckTimeout bounds the whole probe fan-out.
const healthCheckTimeout = 2 * time.Second

// IntegrationStore loads inbound integration credentials.
type IntegrationStore interface {
	GetInboundIntegration(ctx context.Context, orgID string, provider string) (*types.InboundIntegration, error)
}

// DeliveryLogStore is the read slice of the delivery-log repository.
type DeliveryLogStore interface {
	ListByTicket(ctx context.Context, ticketID string, limit int) ([]types.DeliveryLogEntry, error)
}

// InboundSink receives verified inbound webhook payloads for asynchronous
// processing. Invalid payloads never reach it.
type InboundSink interface {
	HandleInbound(ctx context.Context, integration *types.InboundIntegration, body []byte) error
}

// HealthProbe is one critical dependency check.
type HealthProbe interface {
	Name() string
	Check(ctx context.Context) error
}

// Server wires the HTTP handlers to their stores.
type Server struct {
	logger       types.Logger
	integrations IntegrationStore
	deliveries   DeliveryLogStore
	sink         InboundSink
	probes       []HealthProbe
}

// NewServer builds the API server. sink may be nil; verified payloads are
// then acknowledged and dropped, which is how the service runs before inbound
// processing is enabled for a deployment.
func NewServer(
	logger types.Logger,
	integrations IntegrationStore,
	deliveries DeliveryLogStore,
	sink InboundSink,
	probes ...HealthProbe,
) *Server {
	return &Server{
		logger:       logger,
		integrations: integrations,
		deliveries:   deliveries,
		sink:         sink,
		probes:       probes,
	}
}

// Routes assembles the router with the standard middleware chain.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Recoverer(s.logger))
	r.Use(RequestLogger(s.logger))

	r.Get("/health", s.HandleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/orgs/{orgID}/inbound/{provider}", s.HandleInboundVerify)
		r.Post("/orgs/{orgID}/inbound/{provider}", s.HandleInboundEvent)
		r.Get("/tickets/{ticketID}/deliveries", s.HandleListDeliveries)
	})

	return r
}

type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// HandleHealth runs all probes concurrently under a short deadline. 200 when
// every probe passes, 503 otherwise. Public, unauthenticated.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	components := make(map[string]componentStatus, len(s.probes))
	var mu sync.Mutex
	var wg sync.WaitGroup
	healthy := true

	for _, probe := range s.probes {
		wg.Add(1)
		go func(p HealthProbe) {
			defer wg.Done()
			status := componentStatus{Status: "ok"}
			if err := p.Check(ctx); err != nil {
				status = componentStatus{Status: "unhealthy", Message: err.Error()}
			}
			mu.Lock()
			components[p.Name()] = status
			if status.Status != "ok" {
				healthy = false
			}
			mu.Unlock()
		}(probe)
	}
	wg.Wait()

	resp := healthResponse{Status: "ok", Components: components}
	code := http.StatusOK
	if !healthy {
		resp.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	JSON(w, code, resp)
}
