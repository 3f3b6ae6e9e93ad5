// Command ytgrab downloads a single YouTube video from the terminal, with
// quality options and carriage-return progress output.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"ytgrab/internal/config"
	"ytgrab/internal/download"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		quality     string
		audioOnly   bool
		downloadDir string
		list        bool
		version     bool
	)
	flag.StringVar(&quality, "quality", "720p", "Video quality to download (720p|480p|360p)")
	flag.BoolVar(&audioOnly, "audio-only", false, "Download audio only (MP3 format)")
	flag.StringVar(&downloadDir, "download-dir", "downloads", "Directory to save downloads")
	flag.BoolVar(&list, "list", false, "List all downloaded files")
	flag.BoolVar(&version, "version", false, "Print version and exit")
	flag.Usage = usage
	flag.Parse()

	if version {
		fmt.Printf("ytgrab %s\n", config.Version)
		return 0
	}

	if list {
		return listDownloads(downloadDir)
	}

	url := strings.TrimSpace(flag.Arg(0))
	if url == "" {
		fmt.Fprintln(os.Stderr, "Error: URL is required unless using --list")
		flag.Usage()
		return 1
	}

	if !download.IsValidYouTubeURL(url) {
		fmt.Println("Error: Please provide a valid YouTube URL")
		fmt.Println("Supported formats:")
		fmt.Println("  - https://www.youtube.com/watch?v=VIDEO_ID")
		fmt.Println("  - https://youtu.be/VIDEO_ID")
		fmt.Println("  - https://www.youtube.com/embed/VIDEO_ID")
		return 1
	}

	absDir, err := filepath.Abs(downloadDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: resolve download dir: %v\n", err)
		return 1
	}
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Error: create download dir: %v\n", err)
		return 1
	}

	fmt.Printf("Processing URL: %s\n", url)
	fmt.Printf("Download directory: %s\n", downloadDir)
	fmt.Println(strings.Repeat("-", 50))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	printVideoInfo(url)

	if audioOnly {
		fmt.Println("Downloading audio-only version...")
	} else {
		fmt.Printf("Downloading video in %s quality...\n", quality)
	}

	engine := download.YTDLP{}
	req := download.Request{URL: url, Quality: quality, AudioOnly: audioOnly, OutDir: absDir}
	if err := engine.Download(ctx, req, download.SinkFunc(printProgress)); err != nil {
		if ctx.Err() != nil {
			fmt.Println("\n\nDownload interrupted by user.")
			return 1
		}
		fmt.Printf("\nDownload error: %v\n", err)
		fmt.Println("\nDownload failed. Please check the URL and your internet connection.")
		return 1
	}

	fmt.Printf("\nSuccessfully downloaded to: %s\n", downloadDir)
	fmt.Println("\nDownload completed successfully!")
	return 0
}

// printVideoInfo fetches and prints metadata before the transfer starts.
// Failure is not fatal for the CLI path; the download is attempted anyway.
func printVideoInfo(url string) {
	fmt.Println("Fetching video information...")
	info, err := download.FetchVideoInfo(url)
	if err != nil {
		fmt.Printf("Error getting video info: %v\n", err)
		return
	}
	fmt.Printf("Title: %s\n", info.Title)
	fmt.Printf("Uploader: %s\n", info.Uploader)
	fmt.Printf("Duration: %s\n", download.FormatDuration(info.Duration))
	fmt.Println()
}

// printProgress renders engine events as a carriage-return-updated line.
func printProgress(ev download.Event) {
	switch ev.Status {
	case "downloading":
		if ev.TotalBytes > 0 {
			percent := ev.DownloadedBytes / ev.TotalBytes * 100
			fmt.Printf("\rDownloading: %.1f%% | Speed: %s", percent, download.FormatSpeed(ev.Speed))
		} else if ev.PercentStr != "" {
			fmt.Printf("\rDownloading: %s", strings.TrimSpace(ev.PercentStr))
		}
	case "finished":
		fmt.Printf("\nDownload completed: %s\n", filepath.Base(ev.Filename))
	}
}

func listDownloads(dir string) int {
	files, err := download.ListFiles(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: list downloads: %v\n", err)
		return 1
	}
	if len(files) == 0 {
		fmt.Printf("No downloads found in %s\n", dir)
		return 0
	}
	fmt.Printf("Downloaded files in %s:\n", dir)
	for i, f := range files {
		fmt.Printf("%2d. %s (%s)\n", i+1, f.Name, f.Size)
	}
	return 0
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: %s [options] URL

Download YouTube videos with quality options and progress tracking.

Examples:
  %[1]s https://www.youtube.com/watch?v=dQw4w9WgXcQ
  %[1]s https://youtu.be/dQw4w9WgXcQ --quality 480p
  %[1]s https://www.youtube.com/watch?v=dQw4w9WgXcQ --audio-only
  %[1]s --list

Options:
`, filepath.Base(os.Args[0]))
	flag.PrintDefaults()
}
