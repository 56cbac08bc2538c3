package protocol

import (
	"context"
	"testing"
)

func TestRequestMeta(t *testing.T) {
	t.Run("empty context", func(t *testing.T) {
		if got := GetRequestMeta(context.Background(), MetaRemoteAddr); got != "" {
			t.Errorf("GetRequestMeta() = %q, want empty", got)
		}
	})

	t.Run("set does not mutate parent", func(t *testing.T) {
		parent := ContextWithRequestMeta(context.Background(), RequestMeta{MetaTransport: "http"})
		child := SetRequestMeta(parent, MetaRemoteAddr, "10.0.0.1:5555")

		if got := GetRequestMeta(child, MetaTransport); got != "http" {
			t.Errorf("child transport = %q, want %q", got, "http")
		}
		if got := GetRequestMeta(child, MetaRemoteAddr); got != "10.0.0.1:5555" {
			t.Errorf("child remote_addr = %q, want %q", got, "10.0.0.1:5555")
		}
		if got := GetRequestMeta(parent, MetaRemoteAddr); got != "" {
			t.Errorf("parent remote_addr = %q, want empty", got)
		}
	})
}
