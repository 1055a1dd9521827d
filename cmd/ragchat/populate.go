package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ragchat/internal/chat"
	"ragchat/internal/chunker"
	"ragchat/internal/loader"
	"ragchat/internal/service"
)

type populateOptions struct {
	topic        string
	dataPath     string
	chromaPath   string
	reset        bool
	chunkSize    int
	chunkOverlap int
}

func populateCmd(a *app) *cobra.Command {
	opts := &populateOptions{}
	cmd := &cobra.Command{
		Use:   "populate",
		Short: "Load PDFs from the data directory into the index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if !flags.Changed("data-path") {
				opts.dataPath = a.cfg.DataPath
			}
			if !flags.Changed("chroma-path") {
				opts.chromaPath = a.cfg.VectorStore.Path
			}
			if !flags.Changed("chunk-size") {
				opts.chunkSize = a.cfg.Chunker.Size
			}
			if !flags.Changed("chunk-overlap") {
				opts.chunkOverlap = a.cfg.Chunker.Overlap
			}
			return runPopulate(cmd, a, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.topic, "topic", "t", "", "fill the index of this topic instead of --chroma-path")
	cmd.Flags().StringVar(&opts.dataPath, "data-path", "data/", "directory containing the PDFs to ingest")
	cmd.Flags().StringVar(&opts.chromaPath, "chroma-path", "chroma/", "directory of the persistent index")
	cmd.Flags().BoolVar(&opts.reset, "reset", false, "reset the index before ingesting")
	cmd.Flags().IntVar(&opts.chunkSize, "chunk-size", chunker.DefaultChunkSize, "maximum chunk length in characters")
	cmd.Flags().IntVar(&opts.chunkOverlap, "chunk-overlap", chunker.DefaultChunkOverlap, "characters shared by neighbouring chunks")
	return cmd
}

func runPopulate(cmd *cobra.Command, a *app, opts *populateOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	// reject bad chunking before the index is touched
	ch, err := a.newChunker(opts.chunkSize, opts.chunkOverlap)
	if err != nil {
		return err
	}
	emb, err := a.newEmbedder()
	if err != nil {
		return err
	}
	target := chat.Topic{}
	if opts.topic != "" {
		if target, err = a.topic(opts.topic); err != nil {
			return err
		}
		if !target.Retrieval {
			return fmt.Errorf("topic %q does not use an index", opts.topic)
		}
	}
	store, location, err := a.openTopicStore(target, opts.chromaPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if opts.reset {
		if err := store.Reset(ctx); err != nil {
			return fmt.Errorf("reset index: %w", err)
		}
		fmt.Fprintf(out, "Cleared %s\n", location)
	}

	fmt.Fprintf(out, "Loading PDFs from %s ...\n", opts.dataPath)
	docs, err := loader.Load(ctx, opts.dataPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Loaded %d documents\n", len(docs))

	ing := service.NewIngestor(ch, emb, store, a.logger)
	fmt.Fprintf(out, "Splitting into chunks (size=%d, overlap=%d) ...\n", opts.chunkSize, opts.chunkOverlap)
	chunks, err := ing.Split(docs)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Produced %d chunks\n", len(chunks))

	pending, err := ing.Pending(ctx, chunks)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		fmt.Fprintln(out, "No new documents to add.")
	} else {
		fmt.Fprintf(out, "Adding %d new chunks to %s\n", len(pending), location)
		if err := ing.Write(ctx, pending); err != nil {
			return err
		}
	}
	a.logger.Debug("populate finished", "chunks", len(chunks), "added", len(pending), "index", location)
	fmt.Fprintln(out, "Ingestion complete.")
	return nil
}
