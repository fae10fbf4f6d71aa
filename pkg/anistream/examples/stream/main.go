// Example: resolve the stream of the first episode of a search result
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/alvarorichard/anistream/pkg/anistream"
)

func main() {
	client, err := anistream.NewClient()
	if err != nil {
		log.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	animeName := "Demon Slayer"
	fmt.Printf("Searching for '%s'...\n", animeName)
	results, err := client.SearchAnime(ctx, animeName)
	if err != nil {
		log.Fatal(err)
	}
	if len(results) == 0 {
		log.Fatal("No anime found")
	}

	anime := results[0]
	fmt.Printf("Selected: %s [%s]\n", anime.Name, anime.Source)

	episodes, err := client.GetAnimeEpisodes(ctx, anime.URL)
	if err != nil {
		log.Fatal(err)
	}
	if len(episodes) == 0 {
		log.Fatal("No episodes found")
	}

	episode := episodes[0]
	fmt.Printf("\nResolving %s...\n", episode.Number)
	stream, err := client.GetStreamURL(ctx, episode.URL, anime.AltID())
	if err != nil {
		log.Fatalf("Error resolving stream: %v", err)
	}

	fmt.Printf("Stream: %s\n", stream.URL)
	fmt.Printf("Source: %s (rule %q, %d candidates)\n", stream.Source, stream.Rule, len(stream.Candidates))
}
