package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidationReport 配置检查结果，错误阻止启动，警告只提示
type ValidationReport struct {
	Errors   []string
	Warnings []string
}

func (r *ValidationReport) Valid() bool {
	return len(r.Errors) == 0
}

// GetFormattedReport renders the report for the `config` command.
func (r *ValidationReport) GetFormattedReport() string {
	var b strings.Builder
	if r.Valid() {
		b.WriteString("配置有效\n")
	} else {
		b.WriteString("配置无效\n")
	}
	for _, e := range r.Errors {
		fmt.Fprintf(&b, "  [error] %s\n", e)
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(&b, "  [warn]  %s\n", w)
	}
	return b.String()
}

// Check runs tag validation and the cross-field rules.
func (c *Config) Check() *ValidationReport {
	report := &ValidationReport{}

	if err := getValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				report.Errors = append(report.Errors, fieldMessage(fe))
			}
		} else {
			report.Errors = append(report.Errors, err.Error())
		}
	}

	if c.Storage.Backend == "postgres" && strings.TrimSpace(c.Storage.PostgresURL) == "" {
		report.Errors = append(report.Errors, "storage.postgres_url is required when storage.backend is postgres")
	}
	if c.Detector.Provider == "http" {
		general := strings.TrimSpace(c.Detector.GeneralURL) != ""
		constellation := strings.TrimSpace(c.Detector.ConstellationURL) != ""
		switch {
		case general != constellation:
			report.Errors = append(report.Errors, "detector.general_url and detector.constellation_url must be set together")
		case !general:
			report.Warnings = append(report.Warnings, "detector urls are empty, image detection is unavailable")
		}
	}
	if c.LLM.Provider == "openai" && !c.HasValidAPI() {
		report.Warnings = append(report.Warnings, "llm.api_key is empty, narration and chat are unavailable")
	}
	if c.ASR.Provider == "whisper" && strings.TrimSpace(c.ASR.APIKey) == "" {
		report.Warnings = append(report.Warnings, "asr.api_key is empty, speech-to-text is unavailable")
	}
	if c.Pipeline.StreamMaxBytes > c.Pipeline.BatchMaxBytes {
		report.Warnings = append(report.Warnings, "pipeline.stream_max_bytes exceeds pipeline.batch_max_bytes")
	}
	return report
}

func (c *Config) Validate() error {
	report := c.Check()
	if !report.Valid() {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(report.Errors, "; "))
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
