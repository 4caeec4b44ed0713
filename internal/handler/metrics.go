package handler

import (
	"net/http"

	"github.com/efreitasn/hookrelay/internal/service"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

// MetricsHandler exposes store and hub counters in the Prometheus text
// exposition format.
type MetricsHandler struct {
	captureSvc *service.CaptureService
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(captureSvc *service.CaptureService) *MetricsHandler {
	return &MetricsHandler{captureSvc: captureSvc}
}

// Serve handles GET /metrics.
func (h *MetricsHandler) Serve(w http.ResponseWriter, r *http.Request) {
	st := h.captureSvc.Stats()

	families := []*dto.MetricFamily{
		gaugeFamily("hookrelay_captures", "Identifications with a recorded capture.", float64(st.Captures)),
		gaugeFamily("hookrelay_hub_entries", "Fan-out registrations currently held by the hub.", float64(st.Hub.Entries)),
		gaugeFamily("hookrelay_hub_subscribers", "Live stream subscriptions.", float64(st.Hub.Subscribers)),
		counterFamily("hookrelay_hub_published_total", "Captures published to an existing hub entry.", float64(st.Hub.Published)),
		counterFamily("hookrelay_hub_delivered_total", "Captures enqueued to subscribers.", float64(st.Hub.Delivered)),
		counterFamily("hookrelay_hub_dropped_total", "Captures discarded from full subscriber buffers.", float64(st.Hub.Dropped)),
		counterFamily("hookrelay_hub_evicted_total", "Hub entries removed by the idle sweep.", float64(st.Hub.Evicted)),
	}

	format := expfmt.NewFormat(expfmt.TypeTextPlain)
	w.Header().Set("Content-Type", string(format))
	w.WriteHeader(http.StatusOK)

	enc := expfmt.NewEncoder(w, format)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return
		}
	}
}

func gaugeFamily(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(name),
		Help:   proto.String(help),
		Type:   dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{{Gauge: &dto.Gauge{Value: proto.Float64(v)}}},
	}
}

func counterFamily(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(name),
		Help:   proto.String(help),
		Type:   dto.MetricType_COUNTER.Enum(),
		Metric: []*dto.Metric{{Counter: &dto.Counter{Value: proto.Float64(v)}}},
	}
}
