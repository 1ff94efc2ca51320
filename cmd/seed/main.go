// Command seed loads a question bank from a YAML file into the database.
//
//	go run ./cmd/seed -file questions.yaml
package main

import (
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/skillforge-backend/internal/data/db"
	"github.com/yungbote/skillforge-backend/internal/data/repos"
	types "github.com/yungbote/skillforge-backend/internal/domain"
	"github.com/yungbote/skillforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/skillforge-backend/internal/pkg/logger"
)

type seedFile struct {
	Questions []seedQuestion `yaml:"questions"`
}

type seedQuestion struct {
	Subject       string  `yaml:"subject"`
	Topic         string  `yaml:"topic"`
	Difficulty    int     `yaml:"difficulty"`
	Prompt        string  `yaml:"prompt"`
	AnswerKind    string  `yaml:"answer_kind"`
	CorrectAnswer string  `yaml:"correct_answer"`
	Tolerance     float64 `yaml:"tolerance"`
	ErrorTag      string  `yaml:"error_tag"`
}

func main() {
	file := flag.String("file", "", "path to the question bank YAML")
	flag.Parse()
	if *file == "" {
		fmt.Println("usage: seed -file questions.yaml")
		os.Exit(2)
	}

	log, err := logger.New(os.Getenv("LOG_MODE"))
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	raw, err := os.ReadFile(*file)
	if err != nil {
		log.Fatal("Failed to read seed file", "file", *file, "error", err)
	}
	var seed seedFile
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		log.Fatal("Failed to parse seed file", "file", *file, "error", err)
	}
	if len(seed.Questions) == 0 {
		log.Fatal("Seed file has no questions", "file", *file)
	}

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("Failed to init postgres", "error", err)
	}
	if err := db.AutoMigrateAll(pg.DB()); err != nil {
		log.Fatal("Failed to migrate", "error", err)
	}

	questions := make([]*types.Question, 0, len(seed.Questions))
	for i, q := range seed.Questions {
		if q.Subject == "" || q.Topic == "" || q.Prompt == "" || q.CorrectAnswer == "" {
			log.Fatal("Seed question missing required fields", "index", i)
		}
		kind := q.AnswerKind
		if kind == "" {
			kind = types.AnswerKindText
		}
		difficulty := q.Difficulty
		if difficulty <= 0 {
			difficulty = 1
		}
		questions = append(questions, &types.Question{
			Subject:       q.Subject,
			Topic:         q.Topic,
			Difficulty:    difficulty,
			Prompt:        q.Prompt,
			AnswerKind:    kind,
			CorrectAnswer: q.CorrectAnswer,
			Tolerance:     q.Tolerance,
			ErrorTag:      q.ErrorTag,
		})
	}

	repo := repos.NewQuestionRepo(pg.DB(), log)
	if err := repo.Create(dbctx.Background(), questions); err != nil {
		log.Fatal("Failed to insert questions", "error", err)
	}
	log.Info("Seeded questions", "count", len(questions), "file", *file)
}
