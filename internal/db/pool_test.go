package db

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

func TestPoolSettingsNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   PoolSettings
		want PoolSettings
	}{
		{
			name: "zero values get defaults",
			in:   PoolSettings{},
			want: PoolSettings{MaxConns: 10, MinConns: 2, ConnectAttempts: 5},
		},
		{
			name: "explicit values kept",
			in:   PoolSettings{MaxConns: 30, MinConns: 5, ConnectAttempts: 2},
			want: PoolSettings{MaxConns: 30, MinConns: 5, ConnectAttempts: 2},
		},
		{
			name: "min clamped to max",
			in:   PoolSettings{MaxConns: 4, MinConns: 8},
			want: PoolSettings{MaxConns: 4, MinConns: 4, ConnectAttempts: 5},
		},
		{
			name: "negative values get defaults",
			in:   PoolSettings{MaxConns: -1, MinConns: -1, ConnectAttempts: -1},
			want: PoolSettings{MaxConns: 10, MinConns: 2, ConnectAttempts: 5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.normalize(); got != tt.want {
				t.Errorf("normalize() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestNewPool_BadURLFailsWithoutRetrying(t *testing.T) {
	_, err := NewPool(context.Background(), "not a url", PoolSettings{}, zerolog.Nop())
	if err == nil {
		t.Fatal("expected an error for an unparseable database url")
	}
}
