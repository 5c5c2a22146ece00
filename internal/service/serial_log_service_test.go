package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mzollin/CocktailMixer/internal/config"
	"github.com/mzollin/CocktailMixer/internal/hardware"
	"github.com/mzollin/CocktailMixer/internal/models"
	"github.com/mzollin/CocktailMixer/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSerialLogServiceFlushOnClose(t *testing.T) {
	db := repository.SetupTestDB(t)
	svc := NewSerialLogService(db, SerialLogOptions{FlushInterval: time.Hour})

	svc.RecordFrame(models.DirectionRx, []byte(`{"command":"update","id":"encoder","value":3}`),
		hardware.NewFrame(hardware.CommandUpdate, hardware.SignalEncoder, "3"), nil)
	svc.RecordFrame(models.DirectionRx, []byte(`{"command":`), nil, errors.New("bad frame"))
	svc.RecordFrame(models.DirectionTx, []byte(`{"command":"pour","id":"gin","value":"20.00"}`),
		hardware.NewFrame(hardware.CommandPour, "gin", "20.00"), nil)
	svc.Close()

	ctx := context.Background()
	logs, total, err := svc.Query(ctx, &models.SerialLogQuery{SessionID: svc.SessionID()})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, logs, 3)

	stats, err := svc.GetStats(ctx, nil, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.TotalRx)
	assert.EqualValues(t, 1, stats.TotalTx)
	assert.EqualValues(t, 1, stats.TotalErrors)

	errs, _, err := svc.Query(ctx, &models.SerialLogQuery{ErrorsOnly: true})
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, "bad frame", errs[0].ErrorMsg)
	assert.Empty(t, errs[0].Command)
}

func TestSerialLogServiceBatchFlush(t *testing.T) {
	db := repository.SetupTestDB(t)
	svc := NewSerialLogService(db, SerialLogOptions{BatchSize: 2, FlushInterval: time.Hour})
	defer svc.Close()

	frame := hardware.NewFrame(hardware.CommandUpdate, hardware.SignalScale, "12.5")
	svc.RecordFrame(models.DirectionRx, []byte(`{"command":"update","id":"scale","value":12.5}`), frame, nil)
	svc.RecordFrame(models.DirectionRx, []byte(`{"command":"update","id":"scale","value":12.5}`), frame, nil)

	assert.Eventually(t, func() bool {
		_, total, err := svc.Query(context.Background(), &models.SerialLogQuery{})
		return err == nil && total == 2
	}, 2*time.Second, 20*time.Millisecond)
}

func TestSerialLogServiceTruncatesRaw(t *testing.T) {
	db := repository.SetupTestDB(t)
	svc := NewSerialLogService(db, SerialLogOptions{})

	raw := make([]byte, maxRawLength*2)
	for i := range raw {
		raw[i] = 'x'
	}
	svc.RecordFrame(models.DirectionRx, raw, nil, nil)
	svc.Close()

	logs, _, err := svc.Query(context.Background(), &models.SerialLogQuery{})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Len(t, logs[0].RawData, maxRawLength)
	assert.Equal(t, maxRawLength*2, logs[0].BytesCount)
}

func TestSerialLogServiceCleanup(t *testing.T) {
	db := repository.SetupTestDB(t)
	svc := NewSerialLogService(db, SerialLogOptions{})
	defer svc.Close()

	_, err := svc.CleanupOldLogs(context.Background(), 0)
	assert.Error(t, err)

	deleted, err := svc.CleanupOldLogs(context.Background(), 7)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestNewServices(t *testing.T) {
	cfg := config.Default()
	cfg.Security.JWT.Secret = "test-secret"

	withoutDB := NewServices(nil, cfg, zap.NewNop())
	assert.NotNil(t, withoutDB.Auth)
	assert.Nil(t, withoutDB.Recipes)
	assert.Nil(t, withoutDB.SerialLogs)
	withoutDB.Close()

	db := repository.SetupTestDB(t)
	withDB := NewServices(db, cfg, zap.NewNop())
	assert.NotNil(t, withDB.Recipes)
	assert.NotNil(t, withDB.SerialLogs)
	withDB.Close()
}
