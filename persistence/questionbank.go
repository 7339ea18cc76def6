package persistence

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wfunc/quizarena/models"
)

type questionBank struct {
	Categories map[string][]models.Question `yaml:"categories"`
}

// LoadQuestionBank reads a YAML file of the form
//
//	categories:
//	  quran:
//	    - id: q1
//	      text: ...
//	      options: [a, b, c, d]
//	      correct_index: 2
func LoadQuestionBank(path string) ([]models.Question, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read question bank: %w", err)
	}
	return ParseQuestionBank(raw)
}

func ParseQuestionBank(raw []byte) ([]models.Question, error) {
	var bank questionBank
	if err := yaml.Unmarshal(raw, &bank); err != nil {
		return nil, fmt.Errorf("parse question bank: %w", err)
	}

	seen := make(map[string]bool)
	var out []models.Question
	for category, qs := range bank.Categories {
		for _, q := range qs {
			q.Category = category
			if err := validateQuestion(q); err != nil {
				return nil, err
			}
			if seen[q.ID] {
				return nil, fmt.Errorf("question %s: duplicate id", q.ID)
			}
			seen[q.ID] = true
			out = append(out, q)
		}
	}
	return out, nil
}

func validateQuestion(q models.Question) error {
	if strings.TrimSpace(q.ID) == "" {
		return fmt.Errorf("question in %s: missing id", q.Category)
	}
	if strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("question %s: missing text", q.ID)
	}
	if len(q.Options) < 2 {
		return fmt.Errorf("question %s: need at least two options", q.ID)
	}
	if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
		return fmt.Errorf("question %s: correct_index %d out of range", q.ID, q.CorrectIndex)
	}
	return nil
}
