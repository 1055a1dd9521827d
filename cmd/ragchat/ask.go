package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"ragchat/internal/chat"
	"ragchat/internal/service"
	"ragchat/internal/vectorstore"
)

func askCmd(a *app) *cobra.Command {
	var topic, chromaPath string
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a single question and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("chroma-path") {
				chromaPath = a.cfg.VectorStore.Path
			}
			engine, closeFn, err := a.newEngine(cmd, chromaPath)
			if err != nil {
				return err
			}
			defer closeFn()

			session := chat.NewSession(a.cfg.Chat.BotName, a.topics())
			reply, err := engine.Turn(cmd.Context(), session, topic, strings.Join(args, " "))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, reply.Text)
			if len(reply.Sources) > 0 {
				srcs := make([]string, len(reply.Sources))
				for i, s := range reply.Sources {
					srcs[i] = s.String()
				}
				fmt.Fprintf(out, "\nSources: [%s]\n", strings.Join(srcs, ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&topic, "topic", "t", "tet", "conversation topic")
	cmd.Flags().StringVar(&chromaPath, "chroma-path", "chroma/", "directory of the persistent index")
	return cmd
}

// newEngine opens one index per retrieval topic and assembles the chat
// engine. Topics without their own index share chromaPath. The returned
// function closes every opened index.
func (a *app) newEngine(cmd *cobra.Command, chromaPath string) (*chat.Engine, func(), error) {
	ctx := cmd.Context()
	emb, err := a.newEmbedder()
	if err != nil {
		return nil, nil, err
	}
	stores := make(map[string]vectorstore.Storage)
	closeAll := func() {
		for _, st := range stores {
			_ = st.Close()
		}
	}
	topics := a.topics()
	retrievers := make(map[string]chat.Retriever)
	for _, t := range topics {
		if !t.Retrieval {
			continue
		}
		store, ok := stores[t.Index]
		if !ok {
			st, location, err := a.openTopicStore(t, chromaPath)
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			stores[t.Index] = st
			if err := vectorstore.CheckEmbedder(ctx, st, emb.Name()); err != nil {
				closeAll()
				return nil, nil, fmt.Errorf("index %s: %w", location, err)
			}
			store = st
		}
		retrievers[t.ID] = service.NewRetriever(emb, store)
	}
	gen, err := a.newGenerator()
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	engine := chat.NewEngine(nil, gen, chat.Config{
		Topics:      topics,
		Retrievers:  retrievers,
		TopK:        a.cfg.Retrieval.TopK,
		NoInfoReply: a.cfg.Chat.NoInfoReply,
		Logger:      a.logger,
	})
	return engine, closeAll, nil
}
