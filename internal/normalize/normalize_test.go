package normalize

import (
	"errors"
	"testing"

	apperrors "github.com/esomin/gpu-market-etl/internal/errors"
	"github.com/esomin/gpu-market-etl/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_FullExample(t *testing.T) {
	id, err := Normalize("ASUS TUF Gaming RTX 4070 Ti Super OC 16GB")
	require.NoError(t, err)
	assert.Equal(t, "ASUS", id.Brand)
	assert.Equal(t, store.ChipsetRTX4070TiSuper, id.Chipset)
	assert.Equal(t, "16GB", id.VRAM)
	assert.True(t, id.IsOC)
	assert.Equal(t, "TUF", id.ModelName)
}

func TestNormalize_DistinguishesSuperFromBase(t *testing.T) {
	id, err := Normalize("MSI Ventus RTX 4070 Super 12GB")
	require.NoError(t, err)
	assert.Equal(t, store.ChipsetRTX4070Super, id.Chipset)

	id2, err := Normalize("MSI Ventus RTX 4070 12GB")
	require.NoError(t, err)
	assert.Equal(t, store.ChipsetRTX4070, id2.Chipset)
}

func TestNormalize_KoreanOCMarkerRecognized(t *testing.T) {
	id, err := Normalize("ZOTAC Twin Edge RTX 4070 12GB 오버클럭")
	require.NoError(t, err)
	assert.True(t, id.IsOC)
}

func TestNormalize_MissingChipsetRejected(t *testing.T) {
	_, err := Normalize("ASUS TUF RTX 3080 12GB")
	require.Error(t, err)
	var normErr *apperrors.NormalizationError
	require.True(t, errors.As(err, &normErr))
	assert.Equal(t, apperrors.NormalizeChipsetNot4070Series, normErr.Code)
}

func TestNormalize_MissingBrandRejected(t *testing.T) {
	_, err := Normalize("Unbranded RTX 4070 12GB")
	require.Error(t, err)
	var normErr *apperrors.NormalizationError
	require.True(t, errors.As(err, &normErr))
	assert.Equal(t, apperrors.NormalizeBrandMissing, normErr.Code)
}

func TestNormalize_MissingVRAMRejected(t *testing.T) {
	_, err := Normalize("ASUS TUF RTX 4070")
	require.Error(t, err)
	var normErr *apperrors.NormalizationError
	require.True(t, errors.As(err, &normErr))
	assert.Equal(t, apperrors.NormalizeVRAMMissing, normErr.Code)
}

func TestNormalize_UnknownLineupFallsBackToDeterministicHash(t *testing.T) {
	id1, err := Normalize("PALIT RTX 4070 12GB Weird Edition Name")
	require.NoError(t, err)
	assert.NotEmpty(t, id1.ModelName)

	id2, err := Normalize("PALIT RTX 4070 12GB Different Weird Name")
	require.NoError(t, err)
	assert.Equal(t, id1.ModelName, id2.ModelName, "hash depends only on chipset+brand, so distinct residuals still collide")
}

func TestNormalize_IsDeterministic(t *testing.T) {
	const raw = "GIGABYTE Gaming OC RTX 4070 Ti 12GB"
	id1, err1 := Normalize(raw)
	id2, err2 := Normalize(raw)
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, id1, id2)
}
