package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mmcdole/gofeed"
)

type verifyReport struct {
	Path              string
	FeedType          string
	Title             string
	Items             int
	MissingEnclosures []string
	MissingGUIDs      []string
}

func verifyFeed(path string) (verifyReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return verifyReport{}, fmt.Errorf("read feed: %w", err)
	}
	parsed, err := gofeed.NewParser().ParseString(string(data))
	if err != nil {
		return verifyReport{}, fmt.Errorf("parse feed %s: %w", path, err)
	}

	report := verifyReport{
		Path:     path,
		FeedType: parsed.FeedType + " " + parsed.FeedVersion,
		Title:    parsed.Title,
		Items:    len(parsed.Items),
	}
	for _, item := range parsed.Items {
		if len(item.Enclosures) == 0 || item.Enclosures[0].URL == "" {
			report.MissingEnclosures = append(report.MissingEnclosures, item.Title)
		}
		if item.GUID == "" {
			report.MissingGUIDs = append(report.MissingGUIDs, item.Title)
		}
	}
	return report, nil
}

func (r verifyReport) print(w io.Writer) {
	fmt.Fprintf(w, "feed:     %s (%s)\n", r.Path, r.FeedType)
	fmt.Fprintf(w, "title:    %s\n", r.Title)
	fmt.Fprintf(w, "items:    %d\n", r.Items)
	for _, title := range r.MissingEnclosures {
		fmt.Fprintf(w, "missing enclosure: %s\n", title)
	}
	for _, title := range r.MissingGUIDs {
		fmt.Fprintf(w, "missing guid: %s\n", title)
	}
	if len(r.MissingEnclosures) == 0 && len(r.MissingGUIDs) == 0 {
		fmt.Fprintln(w, "status:   ok")
	}
}
