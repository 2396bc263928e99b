package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joelkehle/trip-planner/internal/itinerary"
	"github.com/joelkehle/trip-planner/internal/places"
	"github.com/joelkehle/trip-planner/internal/report"
	"github.com/joelkehle/trip-planner/internal/store"
	"github.com/joelkehle/trip-planner/internal/telemetry"
)

func main() {
	city := flag.String("city", "", "Destination city (required unless -refine)")
	startDate := flag.String("start", "", "Trip start date YYYY-MM-DD")
	endDate := flag.String("end", "", "Trip end date YYYY-MM-DD")
	duration := flag.String("duration", "", `Trip duration, e.g. "2박 3일" or "3일"`)
	companion := flag.String("companion", "", "Who is traveling")
	theme := flag.String("theme", "", "Trip theme")
	pace := flag.String("pace", "", "Trip pace")
	days := flag.Int("days", 0, "Explicit day count (overrides dates and duration)")

	llmKind := flag.String("llm", "anthropic", "LLM backend: anthropic or gemini")
	refinePath := flag.String("refine", "", "Path to a refine request JSON (base itinerary + remove keys)")
	outPath := flag.String("out", "", "Write itinerary JSON here (defaults to stdout)")
	pdfPath := flag.String("pdf", "", "Also render the itinerary as a PDF at this path")

	dbPath := flag.String("db", "", "SQLite path; when set with -save the result is persisted")
	saveUser := flag.String("save", "", "User id to save the itinerary under (requires -db)")

	region := flag.String("region", itinerary.DefaultRegion, "Place search region bias")
	language := flag.String("language", itinerary.DefaultLanguage, "Place search language")
	otlpEndpoint := flag.String("otlp", "", "OTLP/HTTP trace collector endpoint (disabled when empty)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdown, err := telemetry.Setup(ctx, telemetry.Config{Endpoint: *otlpEndpoint, Insecure: true})
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	defer shutdown(context.Background())

	caller, closeCaller, err := buildCaller(ctx, *llmKind)
	if err != nil {
		log.Fatalf("llm: %v", err)
	}
	defer closeCaller()

	mapsClient, err := places.NewClientFromEnv()
	if err != nil {
		log.Fatalf("places: %v", err)
	}
	verifier := places.NewVerifier(mapsClient, places.VerifierConfig{
		Region:   *region,
		Language: *language,
	})

	pipe := itinerary.NewPipeline(itinerary.NewLLMGenerator(caller), verifier, itinerary.Config{})

	var result *itinerary.Itinerary
	if *refinePath != "" {
		var req itinerary.RefineRequest
		if err := readJSON(*refinePath, &req); err != nil {
			log.Fatalf("read refine request: %v", err)
		}
		result, err = pipe.Refine(ctx, req)
	} else {
		if *city == "" {
			log.Fatal("missing required -city")
		}
		result, err = pipe.Generate(ctx, itinerary.TripRequest{
			City:      *city,
			StartDate: *startDate,
			EndDate:   *endDate,
			Duration:  *duration,
			Companion: *companion,
			Theme:     *theme,
			Pace:      *pace,
			Days:      *days,
		})
	}
	if err != nil {
		var malformed *itinerary.MalformedCandidateError
		var lacking *itinerary.InsufficientFillError
		switch {
		case errors.As(err, &malformed):
			log.Fatalf("generator returned a malformed candidate: %v", err)
		case errors.As(err, &lacking):
			b, _ := json.Marshal(lacking.Lacks)
			log.Fatalf("refinement could not fill the removed slots: %s", b)
		default:
			log.Fatalf("pipeline: %v", err)
		}
	}

	if err := writeJSON(*outPath, result); err != nil {
		log.Fatalf("write itinerary: %v", err)
	}

	if *pdfPath != "" {
		md := report.BuildMarkdown(result)
		pdf, err := report.NewChromiumPDFRenderer().Render(ctx, md, result.Title)
		if err != nil {
			log.Fatalf("render pdf: %v", err)
		}
		if err := os.WriteFile(*pdfPath, pdf, 0o644); err != nil {
			log.Fatalf("write pdf: %v", err)
		}
		log.Printf("wrote %s", *pdfPath)
	}

	if *saveUser != "" {
		if *dbPath == "" {
			log.Fatal("-save requires -db")
		}
		st, err := store.Open(*dbPath)
		if err != nil {
			log.Fatalf("open store: %v", err)
		}
		defer st.Close()
		id, err := st.Save(ctx, *saveUser, result)
		if err != nil {
			log.Fatalf("save itinerary: %v", err)
		}
		log.Printf("saved schedule %d for user %s", id, *saveUser)
	}
}

func buildCaller(ctx context.Context, kind string) (itinerary.LLMCaller, func(), error) {
	switch kind {
	case "anthropic":
		c, err := itinerary.NewAnthropicCallerFromEnv()
		if err != nil {
			return nil, nil, err
		}
		return c, func() {}, nil
	case "gemini":
		c, err := itinerary.NewGeminiCallerFromEnv(ctx)
		if err != nil {
			return nil, nil, err
		}
		return c, func() { c.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown llm backend %q", kind)
	}
}

func readJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if path == "" {
		_, err := os.Stdout.Write(b)
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
