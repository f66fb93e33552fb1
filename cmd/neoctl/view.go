package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/neotracker/neotracker/internal/catalog"
)

var viewFlags struct {
	search   string
	minDate  string
	sort     string
	dir      string
	page     int
	pageSize int
	json     bool
}

var viewCmd = &cobra.Command{
	Use:   "view",
	Short: "Print one page of the catalog view",
	Long: `Loads the catalog from Postgres and runs the same filter, sort and
pagination as the API. A page past the end is clamped to the last page.`,
	RunE: runView,
}

func init() {
	f := viewCmd.Flags()
	f.StringVarP(&viewFlags.search, "search", "q", "", "case-insensitive designation substring")
	f.StringVar(&viewFlags.minDate, "min-date", "", "earliest approach, YYYY-MM-DD or RFC3339")
	f.StringVar(&viewFlags.sort, "sort", string(catalog.SortByApproachTime), "designation, approach_time, distance_au or velocity_km_s")
	f.StringVar(&viewFlags.dir, "dir", string(catalog.Descending), "asc or desc")
	f.IntVar(&viewFlags.page, "page", 1, "1-based page")
	f.IntVar(&viewFlags.pageSize, "page-size", catalog.DefaultPageSize, "rows per page (10, 25, 50 or 100)")
	f.BoolVar(&viewFlags.json, "json", false, "print the full view as JSON")
	rootCmd.AddCommand(viewCmd)
}

func runView(cmd *cobra.Command, _ []string) error {
	values := url.Values{}
	values.Set("q", viewFlags.search)
	values.Set("min_date", viewFlags.minDate)
	values.Set("sort", viewFlags.sort)
	values.Set("dir", viewFlags.dir)
	values.Set("page", strconv.Itoa(viewFlags.page))
	values.Set("page_size", strconv.Itoa(viewFlags.pageSize))
	q, err := catalog.ParseViewQuery(values)
	if err != nil {
		return err
	}

	source, err := ensureRecords(cmd.Context())
	if err != nil {
		return err
	}
	loaded, err := source.FetchRecords(cmd.Context())
	if err != nil {
		return err
	}
	valid, _ := catalog.Sanitize(loaded)
	view := catalog.DeriveClamped(valid, q)

	if viewFlags.json {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DESIGNATION\tAPPROACH (UTC)\tDIST (AU)\tV (KM/S)\tDANGER")
	for _, rec := range view.Page.Rows {
		danger := ""
		if rec.Dangerous() {
			danger = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%.6f\t%.2f\t%s\n",
			rec.Designation, rec.ApproachTime.UTC().Format(time.DateTime), rec.DistanceAU, rec.VelocityKmS, danger)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "page %d/%d, %d records, %d dangerous\n",
		view.Query.PageIndex, view.Page.TotalPages, view.Page.Total, view.Charts.Danger.Dangerous)
	return nil
}
