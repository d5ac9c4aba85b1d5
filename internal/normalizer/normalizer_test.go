package normalizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeNameStripsCorporateSuffixes(t *testing.T) {
	assert.Equal(t, "NVIDIA", NormalizeName("NVIDIA CORP"))
	assert.Equal(t, "NVIDIA", NormalizeName("NVIDIA Corporation"))
}

func TestNormalizeNameIdempotent(t *testing.T) {
	once := NormalizeName("Alphabet Inc-Cl A")
	twice := NormalizeName(once)
	assert.Equal(t, once, twice)
}

func TestNormalizeNameEmpty(t *testing.T) {
	assert.Equal(t, "", NormalizeName(""))
}

func TestNameVariantsContainsOriginalAndStripsLeadingThe(t *testing.T) {
	variants := NameVariants("The Coca-Cola Company")
	assert.Contains(t, variants, "THE COCA-COLA COMPANY")
	assert.Contains(t, variants, "COCA COLA")
}

func TestNameVariantsEmpty(t *testing.T) {
	assert.Equal(t, []string{}, NameVariants(""))
}
