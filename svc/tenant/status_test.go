package tenant_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/storefleet/svc/tenant"
)

func TestStatusNext(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from    tenant.Status
		event   tenant.Event
		want    tenant.Status
		wantErr bool
	}{
		{tenant.StatusProvisioning, tenant.EventActivate, tenant.StatusActive, false},
		{tenant.StatusProvisioning, tenant.EventRollback, tenant.StatusDeleted, false},
		{tenant.StatusProvisioning, tenant.EventDeactivate, "", true},
		{tenant.StatusActive, tenant.EventDeactivate, tenant.StatusDeactivated, false},
		{tenant.StatusActive, tenant.EventDelete, tenant.StatusDeleted, false},
		{tenant.StatusActive, tenant.EventActivate, "", true},
		{tenant.StatusDeactivated, tenant.EventActivate, tenant.StatusActive, false},
		{tenant.StatusDeactivated, tenant.EventDelete, tenant.StatusDeleted, false},
		{tenant.StatusDeleted, tenant.EventDelete, tenant.StatusDeleted, false},
		{tenant.StatusDeleted, tenant.EventActivate, "", true},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_"+string(tt.event), func(t *testing.T) {
			t.Parallel()

			got, err := tt.from.Next(tt.event)
			if tt.wantErr {
				assert.ErrorIs(t, err, tenant.ErrInvalidTransition)
				assert.False(t, tt.from.Can(tt.event))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, tt.from.Can(tt.event))
		})
	}
}

func TestStatusHelpers(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []tenant.Event{tenant.EventDeactivate, tenant.EventDelete}, tenant.StatusActive.Events())

	st, err := tenant.ParseStatus("active")
	require.NoError(t, err)
	assert.Equal(t, tenant.StatusActive, st)

	_, err = tenant.ParseStatus("archived")
	assert.ErrorIs(t, err, tenant.ErrInvalidStatus)

	assert.Equal(t, tenant.EventRollback, tenant.TeardownEvent(tenant.StatusProvisioning))
	assert.Equal(t, tenant.EventDelete, tenant.TeardownEvent(tenant.StatusDeactivated))
}
