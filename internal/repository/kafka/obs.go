package kafka

import (
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/propagation"
)

var _ propagation.TextMapCarrier = (*headerCarrier)(nil)

// headerCarrier lets the otel propagator read and write trace context
// directly on a message's headers. Set replaces an existing key so a
// re-published listing event never carries two traceparent values.
type headerCarrier struct {
	headers *[]kafka.Header
}

func carrierFor(hs *[]kafka.Header) headerCarrier { return headerCarrier{headers: hs} }

func (c headerCarrier) Get(key string) string {
	for _, h := range *c.headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c headerCarrier) Set(key, value string) {
	for i, h := range *c.headers {
		if h.Key == key {
			(*c.headers)[i].Value = []byte(value)
			return
		}
	}
	*c.headers = append(*c.headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	ks := make([]string, 0, len(*c.headers))
	for _, h := range *c.headers {
		ks = append(ks, h.Key)
	}
	return ks
}
