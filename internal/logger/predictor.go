package logger

import (
	"io"
	"log"
	"strings"
	"sync"
)

var (
	predictorMu  sync.Mutex
	predictorLog *log.Logger
)

// SetPredictorWriter routes the prompt/reply dump to w. nil disables it.
func SetPredictorWriter(w io.Writer) {
	predictorMu.Lock()
	defer predictorMu.Unlock()
	if w == nil {
		predictorLog = nil
		return
	}
	predictorLog = log.New(w, "", log.LstdFlags)
}

type section struct {
	Title string
	Body  string
}

func writeExchange(kind, predictor, traceID string, sections []section) {
	predictorMu.Lock()
	l := predictorLog
	predictorMu.Unlock()
	if l == nil {
		return
	}
	var b strings.Builder
	b.WriteString("[PREDICTOR]")
	for _, tag := range []string{kind, predictor, traceID} {
		if tag == "" {
			continue
		}
		b.WriteString("[")
		b.WriteString(tag)
		b.WriteString("]")
	}
	b.WriteString("\n")
	for _, sec := range sections {
		t := strings.TrimSpace(sec.Title)
		if t == "" {
			t = "CONTENT"
		}
		b.WriteString("--- ")
		b.WriteString(t)
		b.WriteString(" ---\n")
		b.WriteString(sec.Body)
		if !strings.HasSuffix(sec.Body, "\n") {
			b.WriteString("\n")
		}
	}
	b.WriteString("=====\n")
	l.Print(b.String())
}

func LogPredictorRequest(predictor, traceID, systemPrompt, userPrompt string) {
	writeExchange("request", predictor, traceID, []section{
		{Title: "SYSTEM", Body: systemPrompt},
		{Title: "USER", Body: userPrompt},
	})
}

func LogPredictorResponse(predictor, traceID, raw string) {
	writeExchange("response", predictor, traceID, []section{{Title: "RAW", Body: raw}})
}
