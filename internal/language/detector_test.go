package language

import (
	"testing"

	"github.com/cloo-solutions/kbase/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestDetector_Detect(t *testing.T) {
	d := NewDetector(domain.LanguageEnglish)

	tests := []struct {
		name string
		text string
		want domain.Language
	}{
		{
			name: "english",
			text: "How do I reset the password for my account? You need to open the settings and click the button.",
			want: domain.LanguageEnglish,
		},
		{
			name: "spanish",
			text: "¿Cómo puedo restablecer la contraseña de mi cuenta? Para cambiar la contraseña, usted debe ir a la configuración.",
			want: domain.LanguageSpanish,
		},
		{
			name: "french",
			text: "Comment puis-je réinitialiser le mot de passe de mon compte? Il faut aller dans les paramètres et cliquer sur le bouton.",
			want: domain.LanguageFrench,
		},
		{
			name: "german",
			text: "Wie kann ich das Passwort für mein Konto zurücksetzen? Sie müssen die Einstellungen öffnen und auf die Schaltfläche klicken.",
			want: domain.LanguageGerman,
		},
		{
			name: "portuguese",
			text: "Como posso redefinir a senha da minha conta? Você precisa abrir as configurações e clicar no botão de redefinição.",
			want: domain.LanguagePortuguese,
		},
		{
			name: "italian",
			text: "Come posso reimpostare la password del mio account? Non è difficile: apri le impostazioni della sicurezza. Questo è molto importante per la sicurezza.",
			want: domain.LanguageItalian,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.Detect(tt.text))
		})
	}
}

func TestDetector_FallbackOnWeakEvidence(t *testing.T) {
	d := NewDetector(domain.LanguageGerman)

	assert.Equal(t, domain.LanguageGerman, d.Detect(""))
	assert.Equal(t, domain.LanguageGerman, d.Detect("   12345 !!! "))
	assert.Equal(t, domain.LanguageGerman, d.Detect("ok"))
}

func TestDetector_InvalidFallbackUsesDefault(t *testing.T) {
	d := NewDetector("xx")
	assert.Equal(t, domain.DefaultLanguage, d.Detect(""))
}

func TestDetector_ConfidenceRange(t *testing.T) {
	d := NewDetector(domain.LanguageEnglish)

	res := d.DetectWithConfidence("The service is running and the logs are written to the disk with the usual rotation.")
	assert.Equal(t, domain.LanguageEnglish, res.Language)
	assert.Greater(t, res.Confidence, 0.0)
	assert.LessOrEqual(t, res.Confidence, 1.0)

	assert.Zero(t, d.DetectWithConfidence("").Confidence)
}

func TestDetector_Deterministic(t *testing.T) {
	d := NewDetector(domain.LanguageEnglish)
	text := "Le service est très rapide et la documentation est claire pour les utilisateurs."

	first := d.Detect(text)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, d.Detect(text))
	}
	assert.Equal(t, domain.LanguageFrench, first)
}
