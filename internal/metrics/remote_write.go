package metrics

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/prometheus/prompb"
)

const fleetOrg = "fleet"

// StartRemoteWrite periodically ships the control plane's metrics to a
// Prometheus remote-write endpoint. Series carrying a tenant_id label are
// written under that tenant's org; everything else goes under the fleet org.
func (c *Collector) StartRemoteWrite(ctx context.Context) {
	if c == nil || c.config.RemoteWriteURL == "" {
		return
	}

	ticker := time.NewTicker(c.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = c.flush()
		}
	}
}

func (c *Collector) flush() error {
	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	samples := c.metricsToSamples(mfs)
	if len(samples) == 0 {
		return nil
	}

	for i := 0; i < len(samples); i += c.config.BatchSize {
		end := i + c.config.BatchSize
		if end > len(samples) {
			end = len(samples)
		}
		if err := c.sendBatch(samples[i:end]); err != nil {
			return fmt.Errorf("failed to send batch: %w", err)
		}
	}
	return nil
}

func (c *Collector) metricsToSamples(mfs []*dto.MetricFamily) []prompb.TimeSeries {
	var samples []prompb.TimeSeries
	now := time.Now().UnixNano() / 1e6

	for _, mf := range mfs {
		if !strings.HasPrefix(mf.GetName(), "siteharbor_") {
			continue
		}

		for _, m := range mf.Metric {
			labels := make([]prompb.Label, 0, len(m.Label)+1)
			for _, l := range m.Label {
				labels = append(labels, prompb.Label{
					Name:  l.GetName(),
					Value: l.GetValue(),
				})
			}
			labels = append(labels, prompb.Label{
				Name:  "__name__",
				Value: mf.GetName(),
			})

			var value float64
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				value = m.Counter.GetValue()
			case dto.MetricType_GAUGE:
				value = m.Gauge.GetValue()
			case dto.MetricType_HISTOGRAM:
				hist := m.Histogram
				for _, bucket := range hist.Bucket {
					bucketLabels := append([]prompb.Label{}, labels...)
					bucketLabels = append(bucketLabels, prompb.Label{
						Name:  "le",
						Value: fmt.Sprintf("%g", bucket.GetUpperBound()),
					})

					samples = append(samples, prompb.TimeSeries{
						Labels: bucketLabels,
						Samples: []prompb.Sample{{
							Value:     float64(bucket.GetCumulativeCount()),
							Timestamp: now,
						}},
					})
				}
				continue
			default:
				continue
			}

			samples = append(samples, prompb.TimeSeries{
				Labels: labels,
				Samples: []prompb.Sample{{
					Value:     value,
					Timestamp: now,
				}},
			})
		}
	}

	return samples
}

func (c *Collector) sendBatch(samples []prompb.TimeSeries) error {
	// Group by tenant
	byOrg := make(map[string][]prompb.TimeSeries)
	for _, ts := range samples {
		org := fleetOrg
		for _, label := range ts.Labels {
			if label.Name == "tenant_id" {
				org = label.Value
				break
			}
		}
		byOrg[org] = append(byOrg[org], ts)
	}

	for org, orgSamples := range byOrg {
		req := &prompb.WriteRequest{
			Timeseries: orgSamples,
		}

		data, err := req.Marshal()
		if err != nil {
			return err
		}

		compressed := snappy.Encode(nil, data)

		httpReq, err := http.NewRequest("POST", c.config.RemoteWriteURL+"/api/v1/push", bytes.NewReader(compressed))
		if err != nil {
			return err
		}

		httpReq.Header.Set("Content-Type", "application/x-protobuf")
		httpReq.Header.Set("Content-Encoding", "snappy")
		httpReq.Header.Set(c.config.TenantHeader, org)
		if c.config.AuthToken != "" {
			httpReq.Header.Set("Authorization", "Bearer "+c.config.AuthToken)
		}

		client := &http.Client{Timeout: 30 * time.Second}
		resp, err := client.Do(httpReq)
		if err != nil {
			return err
		}
		resp.Body.Close()

		if resp.StatusCode/100 != 2 {
			return fmt.Errorf("remote write failed: %s", resp.Status)
		}
	}

	return nil
}
