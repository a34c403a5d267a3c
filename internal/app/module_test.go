package app

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
)

func TestModuleGraphIsComplete(t *testing.T) {
	err := fx.ValidateApp(
		Module(),
		fx.WithLogger(func() fxevent.Logger { return fxevent.NopLogger }),
	)
	require.NoError(t, err)
}
