// Package prompt renders the instructions sent to the SQL generator.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/Beni-V/text2sql/internal/catalog"
	"github.com/Beni-V/text2sql/internal/errs"
)

type Options struct {
	// Dialect names the target engine, e.g. "PostgreSQL".
	Dialect string
	// ReadOnly asks for SELECT or WITH statements only.
	ReadOnly bool
	// AllowEmptySchema renders a prompt even when no tables were selected.
	AllowEmptySchema bool
}

var generateTemplate = template.Must(template.New("generate").Parse(`You are an expert SQL assistant for {{.Dialect}}.
Given a natural language question, generate an accurate SQL query.

Database schema (JSON format):
{{.Schema}}

The schema maps table names to their schema name, columns and relationships.
Each foreign key lists the column and the table and column it references;
referenced_by lists the tables pointing at this one.

Rules:
1. Return ONLY the raw SQL query
2. Don't include any explanations or markdown formatting
3. Use proper JOINs and WHERE clauses as needed, joining on the listed relationships
4. Include all relevant columns
5. Only use tables and columns present in the schema
{{- if .ReadOnly}}
6. Write a single read-only SELECT or WITH statement
{{- end}}

Question: "{{.Question}}"

SQL:
`))

var refineTemplate = template.Must(template.New("refine").Parse(`You are an expert SQL assistant for {{.Dialect}}.
A previous SQL query written for the question below failed when it was executed.
Correct it.

Database schema (JSON format):
{{.Schema}}

Question: "{{.Question}}"

Failed SQL:
{{.FailedQuery}}

Database error:
{{.Error}}

Rules:
1. Return ONLY the corrected raw SQL query
2. Don't include any explanations or markdown formatting
3. Fix the cause named in the database error; keep the intent of the question
4. Only use tables and columns present in the schema
{{- if .ReadOnly}}
5. Write a single read-only SELECT or WITH statement
{{- end}}

SQL:
`))

type templateData struct {
	Dialect     string
	Schema      string
	Question    string
	FailedQuery string
	Error       string
	ReadOnly    bool
}

// Build returns the generation prompt for question over schema.
func Build(opts Options, schema *catalog.Graph, question string) (string, error) {
	data, err := prepare("prompt.Build", opts, schema, question)
	if err != nil {
		return "", err
	}
	return render(generateTemplate, data)
}

// BuildRefinement returns the prompt asking to correct failedQuery given the
// database error it produced.
func BuildRefinement(opts Options, schema *catalog.Graph, question, failedQuery, errorMessage string) (string, error) {
	data, err := prepare("prompt.BuildRefinement", opts, schema, question)
	if err != nil {
		return "", err
	}
	data.FailedQuery = strings.TrimSpace(failedQuery)
	data.Error = strings.TrimSpace(errorMessage)
	return render(refineTemplate, data)
}

func prepare(op string, opts Options, schema *catalog.Graph, question string) (templateData, error) {
	if schema.Len() == 0 && !opts.AllowEmptySchema {
		return templateData{}, errs.E(errs.KindQueryGeneration, op, "no schema context available for question", nil)
	}
	if schema == nil {
		schema = catalog.NewGraph()
	}
	encoded, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return templateData{}, errs.Wrap(errs.KindQueryGeneration, op, "Failed to serialize schema", err)
	}
	dialect := strings.TrimSpace(opts.Dialect)
	if dialect == "" {
		dialect = "SQL"
	}
	return templateData{
		Dialect:  dialect,
		Schema:   string(encoded),
		Question: strings.TrimSpace(question),
		ReadOnly: opts.ReadOnly,
	}, nil
}

func render(tmpl *template.Template, data templateData) (string, error) {
	var out strings.Builder
	if err := tmpl.Execute(&out, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", tmpl.Name(), err)
	}
	return out.String(), nil
}
