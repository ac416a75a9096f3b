package server

import (
	"fmt"
	"io"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/robertmeta/ferment-cli/model"
	"github.com/robertmeta/ferment-cli/stress"
)

// Metric names exposed on /metrics.
const (
	MetricStress   = "ferment_stress_units"
	MetricRatio    = "ferment_stress_ratio"
	MetricStarters = "ferment_starters"
)

// WriteMetrics writes per-starter stress gauges and a per-label count in the
// Prometheus text exposition format.
func WriteMetrics(w io.Writer, items []model.StarterStatus) error {
	stressFamily := gaugeFamily(MetricStress, "Accumulated stress in baseline hours since the last feed.")
	ratioFamily := gaugeFamily(MetricRatio, "Stress divided by the feed interval.")
	counts := make(map[stress.Label]int, len(stress.Labels))

	for _, item := range items {
		labels := []*dto.LabelPair{
			labelPair("starter", item.Starter.Name),
			labelPair("uid", item.Starter.UID),
			labelPair("location", string(item.Starter.Location)),
			labelPair("status", string(item.Status.Label)),
		}
		stressFamily.Metric = append(stressFamily.Metric, gauge(labels, item.Status.Stress))
		ratioFamily.Metric = append(ratioFamily.Metric, gauge(labels, item.Status.Ratio))
		counts[item.Status.Label]++
	}

	startersFamily := gaugeFamily(MetricStarters, "Number of starters per status.")
	for _, l := range stress.Labels {
		startersFamily.Metric = append(startersFamily.Metric,
			gauge([]*dto.LabelPair{labelPair("status", string(l))}, float64(counts[l])))
	}

	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range []*dto.MetricFamily{stressFamily, ratioFamily, startersFamily} {
		if len(mf.Metric) == 0 {
			continue
		}
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

func gaugeFamily(name, help string) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: proto.String(name),
		Help: proto.String(help),
		Type: dto.MetricType_GAUGE.Enum(),
	}
}

func gauge(labels []*dto.LabelPair, v float64) *dto.Metric {
	return &dto.Metric{
		Label: labels,
		Gauge: &dto.Gauge{Value: proto.Float64(v)},
	}
}

func labelPair(name, value string) *dto.LabelPair {
	return &dto.LabelPair{Name: proto.String(name), Value: proto.String(value)}
}
