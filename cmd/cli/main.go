package main

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	backend   string
	optimize  string
	emitIR    bool
	outPath   string
)

func main() {
	root := &cobra.Command{
		Use:   "playground-cli",
		Short: "CLI client for the Tonyukuk playground",
	}

	root.PersistentFlags().StringVar(&serverURL, "server", "http://127.0.0.1:8081", "Server URL")

	// Compile and run
	runCmd := &cobra.Command{
		Use:   "run [file]",
		Short: "Compile and run a Tonyukuk program (reads stdin without a file)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runRun,
	}
	runCmd.Flags().StringVar(&backend, "backend", "native", "Compiler backend (native, llvm)")
	runCmd.Flags().StringVarP(&optimize, "optimize", "O", "", "Optimization flag for llvm (-O0..-O3)")
	runCmd.Flags().BoolVar(&emitIR, "emit-ir", false, "Print LLVM IR instead of running (llvm backend)")
	root.AddCommand(runCmd)

	// Compile to WASM
	wasmCmd := &cobra.Command{
		Use:   "wasm [file]",
		Short: "Compile a Tonyukuk program to WebAssembly",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runWasm,
	}
	wasmCmd.Flags().StringVarP(&outPath, "output", "o", "program.wasm", "Output file")
	root.AddCommand(wasmCmd)

	// Health check
	root.AddCommand(&cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE:  runHealth,
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func readSource(args []string) (string, error) {
	if len(args) > 0 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", fmt.Errorf("reading file: %w", err)
		}
		return string(data), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return string(data), nil
}

func runRun(_ *cobra.Command, args []string) error {
	code, err := readSource(args)
	if err != nil {
		return err
	}

	form := url.Values{
		"kod":     {code},
		"backend": {backend},
	}
	if optimize != "" {
		if !strings.HasPrefix(optimize, "-") {
			optimize = "-" + optimize
		}
		form.Set("optimize", optimize)
	}
	if emitIR {
		form.Set("emit_ir", "true")
	}

	status, body, err := post("/run", form)
	if err != nil {
		return err
	}

	os.Stdout.Write(body)
	if len(body) > 0 && body[len(body)-1] != '\n' {
		fmt.Println()
	}
	if status != http.StatusOK {
		return fmt.Errorf("server returned %d", status)
	}
	return nil
}

func runWasm(_ *cobra.Command, args []string) error {
	code, err := readSource(args)
	if err != nil {
		return err
	}

	status, body, err := post("/compile-wasm", url.Values{"kod": {code}})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		fmt.Fprintln(os.Stderr, string(body))
		return fmt.Errorf("server returned %d", status)
	}

	if err := os.WriteFile(outPath, body, 0o644); err != nil {
		return fmt.Errorf("writing module: %w", err)
	}
	fmt.Printf("%s (%d bytes)\n", outPath, len(body))
	return nil
}

func post(path string, form url.Values) (int, []byte, error) {
	client := &http.Client{Timeout: 40 * time.Second}
	resp, err := client.PostForm(serverURL+path, form)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("reading response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func runHealth(_ *cobra.Command, _ []string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(serverURL + "/saglik")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	fmt.Println(strings.TrimSpace(string(body)))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	return nil
}
