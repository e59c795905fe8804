package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/xeipuuv/gojsonschema"

	"github.com/tickfetch/tickfetch/packages/archive"
	"github.com/tickfetch/tickfetch/packages/client"
	"github.com/tickfetch/tickfetch/packages/core/config"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Fetch one endpoint and print the result",
	Long: `Fetch a single HTTP endpoint through the pooled client.

Examples:
  # Probe an endpoint
  tickfetch fetch https://api.example.com/v1/ticks

  # POST a JSON payload and pull one field out of the response
  tickfetch fetch https://api.example.com/v1/orders \
    -X POST -d '{"symbol":"AUD/USD","qty":1}' \
    -H "Content-Type: application/json" --extract order_id

  # Validate the response against a JSON schema and archive the exchange
  tickfetch fetch https://api.example.com/v1/ticks \
    --schema tick.schema.json --archive probes.db`,
	Args: cobra.ExactArgs(1),
	RunE: fetchCommand,
}

var (
	fetchMethodFlag     string
	fetchHeaderFlags    []string
	fetchDataFlag       string
	fetchDataFileFlag   string
	fetchTimeoutFlag    string
	fetchExtractFlag    string
	fetchSchemaFlag     string
	fetchArchiveFlag    string
	fetchBodyFlag       bool
	fetchIdempotentFlag bool
	fetchInsecureFlag   bool
)

func init() {
	fetchCmd.Flags().StringVarP(&fetchMethodFlag, "method", "X", "", "HTTP method (default GET, POST when a body is given)")
	fetchCmd.Flags().StringArrayVarP(&fetchHeaderFlags, "header", "H", nil, "Request header as \"Name: value\" (repeatable)")
	fetchCmd.Flags().StringVarP(&fetchDataFlag, "data", "d", "", "Request body")
	fetchCmd.Flags().StringVar(&fetchDataFileFlag, "data-file", "", "Read the request body from a file")
	fetchCmd.Flags().StringVarP(&fetchTimeoutFlag, "timeout", "t", "", "Per-request timeout (e.g. 5s)")
	fetchCmd.Flags().StringVar(&fetchExtractFlag, "extract", "", "gjson path to print from the response body")
	fetchCmd.Flags().StringVar(&fetchSchemaFlag, "schema", "", "JSON schema file the response body must satisfy")
	fetchCmd.Flags().StringVar(&fetchArchiveFlag, "archive", "", "SQLite file to archive the exchange in")
	fetchCmd.Flags().BoolVar(&fetchBodyFlag, "body", false, "Print the response body")
	fetchCmd.Flags().BoolVar(&fetchIdempotentFlag, "idempotent", false, "Allow retrying a non-idempotent method")
	fetchCmd.Flags().BoolVarP(&fetchInsecureFlag, "insecure", "k", false, "Disable TLS certificate validation")
}

func fetchCommand(cmd *cobra.Command, args []string) error {
	url := args[0]

	cfg, err := loadCLIConfig()
	if err != nil {
		return err
	}
	if fetchInsecureFlag {
		cfg.Insecure = config.BoolPtr(true)
	}

	headers, err := parseHeaderFlags(fetchHeaderFlags)
	if err != nil {
		return err
	}

	body, err := fetchBody()
	if err != nil {
		return err
	}

	method := strings.ToUpper(fetchMethodFlag)
	if method == "" {
		method = "GET"
		if body != nil {
			method = "POST"
		}
	}

	reqOpts := []client.RequestOption{}
	if len(headers) > 0 {
		reqOpts = append(reqOpts, client.WithHeaders(headers))
	}
	if fetchTimeoutFlag != "" {
		d, err := time.ParseDuration(fetchTimeoutFlag)
		if err != nil {
			return fmt.Errorf("invalid timeout: %w", err)
		}
		reqOpts = append(reqOpts, client.WithTimeout(d))
	}
	if fetchIdempotentFlag {
		reqOpts = append(reqOpts, client.WithIdempotent())
	}

	log := newLogger(cfg)
	defer log.Sync()
	formatter := newFormatter(cfg)

	c := client.New(clientOptions(cfg, nil, log)...)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := c.Connect(ctx); err != nil {
		return err
	}
	defer c.Close(context.Background())

	req := client.NewRequest(method, url, body, reqOpts...)
	resp, sendErr := c.Send(ctx, req)

	archivePath := cfg.Archive
	if fetchArchiveFlag != "" {
		archivePath = fetchArchiveFlag
	}
	if archivePath != "" {
		if err := archiveExchange(archivePath, req, resp, sendErr); err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}
	}

	if sendErr != nil {
		formatter.FormatError(url, sendErr)
		os.Exit(ExitNetworkError)
	}

	formatter.FormatResponse(url, resp)

	failed := !resp.OK()

	if fetchExtractFlag != "" {
		field := resp.Field(fetchExtractFlag)
		if !field.Exists() {
			formatter.FormatExtract(fetchExtractFlag, "<missing>")
			failed = true
		} else {
			formatter.FormatExtract(fetchExtractFlag, field.String())
		}
	}

	if fetchSchemaFlag != "" {
		ok, err := validateSchema(fetchSchemaFlag, resp.Data)
		if err != nil {
			return err
		}
		if !ok {
			failed = true
		}
	}

	if fetchBodyFlag {
		formatter.FormatBody(resp.Data)
	}

	if failed {
		os.Exit(ExitRequestFailure)
	}
	return nil
}

func fetchBody() ([]byte, error) {
	if fetchDataFlag != "" && fetchDataFileFlag != "" {
		return nil, fmt.Errorf("--data and --data-file are mutually exclusive")
	}
	if fetchDataFlag != "" {
		return []byte(fetchDataFlag), nil
	}
	if fetchDataFileFlag != "" {
		return os.ReadFile(fetchDataFileFlag)
	}
	return nil, nil
}

// validateSchema checks the response body against a JSON schema file and
// prints any violations.
func validateSchema(schemaPath string, body []byte) (bool, error) {
	abs, err := filepath.Abs(schemaPath)
	if err != nil {
		return false, err
	}
	schemaLoader := gojsonschema.NewReferenceLoader("file://" + abs)
	documentLoader := gojsonschema.NewBytesLoader(body)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return false, fmt.Errorf("validate schema: %w", err)
	}
	if result.Valid() {
		return true, nil
	}
	for _, desc := range result.Errors() {
		fmt.Fprintf(os.Stderr, "  schema: %s\n", desc)
	}
	return false, nil
}

// archiveExchange stores one exchange, failed requests included.
func archiveExchange(path string, req *client.Request, resp *client.Response, sendErr error) error {
	store, err := archive.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	ex := &archive.Exchange{
		Method:      req.Method,
		URL:         req.URL,
		RequestBody: req.Body,
	}
	if resp != nil {
		ex.Status = resp.Status
		ex.Headers = resp.Headers
		ex.ResponseBody = resp.Data
		ex.Elapsed = resp.Elapsed
		ex.Attempts = resp.Attempts
	}
	if sendErr != nil {
		ex.Error = sendErr.Error()
	}
	return store.Insert(ex)
}
