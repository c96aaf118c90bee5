package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type formatter func(any) error

func yamlFormatter(resource any) error {
	data, err := yaml.Marshal(resource)
	if err != nil {
		return err
	}
	fmt.Print(string(data))

	return nil
}

func jsonFormatter(resource any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "\t")

	return encoder.Encode(resource)
}

func getFormatter(formatName outputFormat) (formatter, error) {
	switch formatName {
	case "yaml", "yml":
		return yamlFormatter, nil
	case "json":
		return jsonFormatter, nil
	}

	return nil, fmt.Errorf("unsupported output format %q", formatName)
}

func readContent(filename string) ([]byte, string, error) {
	if filename == "-" {
		content, err := io.ReadAll(os.Stdin)
		if err != nil {
			return content, "<stdin>", fmt.Errorf("failed to read content from STDIN: %w", err)
		}

		return content, "<stdin>", err
	}

	content, err := os.ReadFile(filename)
	return content, filepath.Ext(filename), err
}

// openOutput returns STDOUT for an empty name or "-".
func openOutput(filename string) (io.WriteCloser, error) {
	if filename == "" || filename == "-" {
		return nopCloser{os.Stdout}, nil
	}

	output, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open output file: %w", err)
	}

	return output, nil
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
