package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"istanbul", "istanbul"},
		{"İstanbul", "istanbul"},
		{"İSTANBUL", "istanbul"},
		{"I\u0307stanbul", "istanbul"},
		{"Çankırı", "cankiri"},
		{"Ağrı", "agri"},
		{"  Ankara ", "ankara"},
		{"Ä°stanbul", "istanbul"},
		{"ĹžanlÄ±urfa", "sanliurfa"},
		{"ÅžanlÄ±urfa", "sanliurfa"},
		{"KahramanmaraĹź", "kahramanmaras"},
		{"Ă‡ankÄ±rÄ±", "cankiri"},
		{"GĂĽmĂĽĹźhane", "gumushane"},
		{"GÃ¼mÃ¼ÅŸhane", "gumushane"},
		{"AÄźrÄ±", "agri"},
		{"İstanbulÃ©€€", "istanbulã©€€"},
		{"Cafã©", "cafã©"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeName(tt.raw))
		})
	}
}

func TestNormalizeName_Idempotent(t *testing.T) {
	inputs := []string{
		"İstanbul", "Ä°stanbul", "ĹžanlÄ±urfa", "GÃ¼mÃ¼ÅŸhane", "Kırşehir",
		"MUĞLA", "Köln Ø", "Ăx", "ÂÇĞİÖŞÜâçğıöşü", "",
		"İstanbulÃ©€€", "CafÃ©", "Ã©€€", "Ä°stanbulÃ¨â‚¬",
	}
	for _, in := range inputs {
		once := NormalizeName(in)
		assert.Equal(t, once, NormalizeName(once), "input %q", in)
	}
}

func TestNameNormalizer_ReportsUnrepairedSegments(t *testing.T) {
	var reports []string
	n := NewNameNormalizer(func(raw, segment string) {
		assert.Equal(t, "Köln Ø", raw)
		reports = append(reports, segment)
	})

	got := n.Normalize("Köln Ø")

	assert.Equal(t, "koln ø", got, "unrepaired segment passes through")
	assert.Equal(t, []string{"Ø"}, reports)
}

func TestNameNormalizer_NoReportForCleanNames(t *testing.T) {
	called := false
	n := NewNameNormalizer(func(_, _ string) { called = true })

	n.Normalize("Ä°zmir")
	n.Normalize("İzmir")

	assert.False(t, called)
}

func TestNameNormalizer_ReportsNonTurkishDecodes(t *testing.T) {
	var reports []string
	n := NewNameNormalizer(func(_, segment string) { reports = append(reports, segment) })

	got := n.Normalize("İstanbulÃ©€€")

	assert.Equal(t, "istanbulã©€€", got)
	assert.Equal(t, []string{"Ã©€€"}, reports)
	assert.Equal(t, got, n.Normalize(got))
}
