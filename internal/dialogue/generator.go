package dialogue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// TextGenerator produces free text for turns no rule understands.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

const generateTimeout = 8 * time.Second

func (e *Engine) generate(ctx context.Context, st *turnState) string {
	if e.generator == nil {
		return helpText()
	}
	ctx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	text, err := e.generator.Generate(ctx, fallbackPrompt(st))
	if err != nil {
		e.logger.Warn("text generation failed", zap.Error(err))
		return helpText()
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return helpText()
	}
	return text
}

func fallbackPrompt(st *turnState) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Sos el asistente de WhatsApp de %s, un lugar con cena y baile en Argentina. ", st.business().Name)
	sb.WriteString("Respondé en español rioplatense, breve y amable, en no más de dos oraciones. ")
	sb.WriteString("Si el cliente quiere reservar, pedile el día, la cantidad de personas y si es para cena o baile. ")
	sb.WriteString("No inventes precios, horarios ni promociones.\n\n")
	if len(st.dc.History) > 0 {
		sb.WriteString("Mensajes anteriores del cliente:\n")
		for _, t := range st.dc.History {
			sb.WriteString("- " + t.Text + "\n")
		}
	}
	sb.WriteString("Mensaje actual: " + st.turn.Text)
	return sb.String()
}
