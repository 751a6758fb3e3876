package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pavelanni/studyhall/internal/model"
	"github.com/pavelanni/studyhall/internal/study"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Merge backup files (JSON or YAML) into the knowledge base",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runImport,
	}
	addServiceFlags(cmd)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the whole knowledge base as a backup file",
		RunE:  runExport,
	}
	cmd.Flags().StringP("output", "o", "-", "Output file path (- for stdout); a .yaml or .yml name selects YAML")
	addServiceFlags(cmd)
	return cmd
}

func generateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate [FILE...]",
		Short: "Generate a quiz from a topic and optional study material",
		RunE:  runGenerate,
	}
	f := cmd.Flags()
	f.StringP("topic", "t", "", "Quiz topic")
	f.StringP("difficulty", "d", "", "Difficulty (Easy, Medium, Hard; empty for mixed)")
	f.IntP("count", "n", 5, "Number of questions")
	f.StringSlice("types", nil, "Question types to use (single_choice, multi_choice, fill_blank, code, essay, diagram)")
	f.String("title", "", "Session title (defaults to the topic)")
	addServiceFlags(cmd)
	return cmd
}

func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest FILE...",
		Short: "Extract a syllabus and questions from documents into the knowledge base",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runIngest,
	}
	addServiceFlags(cmd)
	return cmd
}

func planCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Write a study plan for a topic",
		RunE:  runPlan,
	}
	f := cmd.Flags()
	f.StringP("topic", "t", "", "Topic to plan for (required)")
	f.String("session", "", "Session whose weak areas should get extra weight")
	_ = cmd.MarkFlagRequired("topic")
	addServiceFlags(cmd)
	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	a, err := openApp(cmd.Context(), v)
	if err != nil {
		return err
	}
	defer a.Close()

	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		report, err := a.svc.ImportBackup(cmd.Context(), path, data)
		if err != nil {
			return fmt.Errorf("import %s: %w", path, err)
		}
		if report.AlreadyImported {
			slog.Info("file unchanged since last import, skipping", "path", path)
			continue
		}
		slog.Info("imported backup", "path", path,
			"questions_added", report.QuestionsAdded, "questions_skipped", report.QuestionsSkipped,
			"syllabuses_added", report.SyllabusesAdded, "syllabuses_skipped", report.SyllabusesSkipped)
	}
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	a, err := openApp(cmd.Context(), v)
	if err != nil {
		return err
	}
	defer a.Close()

	outPath := v.GetString("output")
	data, err := encodeBackup(a.svc.ExportBackup(), outPath)
	if err != nil {
		return err
	}
	return writeOutput(outPath, data)
}

func encodeBackup(b model.Backup, path string) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := yaml.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("marshal YAML: %w", err)
		}
		return data, nil
	default:
		data, err := json.MarshalIndent(b, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal JSON: %w", err)
		}
		return append(data, '\n'), nil
	}
}

func writeOutput(path string, data []byte) error {
	var w io.Writer
	if path == "" || path == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

func readUploads(paths []string) ([]model.UploadedFile, error) {
	files := make([]model.UploadedFile, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		// The media type is sniffed during ingestion.
		files = append(files, model.UploadedFile{Name: filepath.Base(p), Data: data})
	}
	return files, nil
}

func runGenerate(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	files, err := readUploads(args)
	if err != nil {
		return err
	}
	a, err := openApp(cmd.Context(), v)
	if err != nil {
		return err
	}
	defer a.Close()

	req := study.QuizRequest{
		Title:      v.GetString("title"),
		Topic:      v.GetString("topic"),
		Difficulty: model.Difficulty(v.GetString("difficulty")),
		Count:      v.GetInt("count"),
		Files:      files,
	}
	for _, t := range v.GetStringSlice("types") {
		req.Types = append(req.Types, model.QuestionType(t))
	}
	sess, err := a.svc.GenerateQuiz(cmd.Context(), req)
	if err != nil {
		return err
	}
	return printJSON(sess)
}

func runIngest(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	files, err := readUploads(args)
	if err != nil {
		return err
	}
	a, err := openApp(cmd.Context(), v)
	if err != nil {
		return err
	}
	defer a.Close()

	ext, report, err := a.svc.ImportFiles(cmd.Context(), files)
	if err != nil {
		return err
	}
	slog.Info("ingested files", "files", len(files),
		"questions_added", report.QuestionsAdded, "syllabuses_added", report.SyllabusesAdded)
	return printJSON(ext)
}

func runPlan(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	a, err := openApp(cmd.Context(), v)
	if err != nil {
		return err
	}
	defer a.Close()

	plan, err := a.svc.StudyPlan(cmd.Context(), v.GetString("topic"), v.GetString("session"))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, plan)
	return err
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	return writeOutput("-", append(data, '\n'))
}
