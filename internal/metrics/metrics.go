// Package metrics holds what the per-package prometheus collectors share.
package metrics

import (
	"reflect"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric name.
const Namespace = "clipsync"

// Collector is implemented by components that expose metrics.
type Collector interface {
	Metrics() []prometheus.Collector
}

// CollectorsFromFields returns every exported field of the struct i (or the
// struct i points to) that is a prometheus.Collector.
func CollectorsFromFields(i any) (cs []prometheus.Collector) {
	v := reflect.Indirect(reflect.ValueOf(i))
	if v.Kind() != reflect.Struct {
		return nil
	}
	for i := 0; i < v.NumField(); i++ {
		if !v.Field(i).CanInterface() {
			continue
		}
		if u, ok := v.Field(i).Interface().(prometheus.Collector); ok {
			cs = append(cs, u)
		}
	}
	return cs
}

// MustRegister registers the metrics of every component on reg.
func MustRegister(reg prometheus.Registerer, components ...Collector) {
	for _, c := range components {
		reg.MustRegister(c.Metrics()...)
	}
}
