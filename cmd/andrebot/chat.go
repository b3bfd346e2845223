package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/andresdev/backstage/internal/chatflow"
	"github.com/andresdev/backstage/internal/domain"
	"github.com/andresdev/backstage/internal/imaging"
)

func newChatCmd(a *app) *cobra.Command {
	var faqPath string
	var catalogURL, whatsAppURL string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Habla con Andrebot y crea tickets de soporte",
		Long: `Abre una conversación con Andrebot. La conversación se guarda localmente
y se retoma la próxima vez hasta que escribas /nuevo.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := a.stateDir()
			if err != nil {
				return err
			}

			kb := chatflow.DefaultKnowledgeBase
			if faqPath != "" {
				if kb, err = chatflow.LoadKnowledgeBase(faqPath); err != nil {
					return err
				}
			}
			flow := chatflow.NewFlow(chatflow.NewResponder(nil, kb), chatflow.Links{
				CatalogURL:    catalogURL,
				WhatsAppURL:   whatsAppURL,
				TicketBaseURL: a.serverURL() + "/soporte/tickets",
			})

			r := &chatRunner{
				engine:   chatflow.NewEngine(flow, a.client, a.clock, chatflow.DefaultTypingDelay, a.logger),
				store:    newSessionStore(dir),
				history:  a.client,
				uploader: a.client,
				readFile: os.ReadFile,
				in:       cmd.InOrStdin(),
				out:      cmd.OutOrStdout(),
				logger:   a.logger,
			}
			return r.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&faqPath, "faq", "", "YAML knowledge base file")
	cmd.Flags().StringVar(&catalogURL, "catalogo-url", "", "catalog link offered for quotes")
	cmd.Flags().StringVar(&whatsAppURL, "whatsapp-url", "", "WhatsApp link offered for quotes")
	return cmd
}

type imageUploader interface {
	UploadImage(ctx context.Context, filename string, data []byte) (string, error)
}

type chatHistory interface {
	GetChat(ctx context.Context, id uuid.UUID) (*domain.ChatSession, error)
}

// chatRunner drives an interactive conversation over a line-based terminal.
type chatRunner struct {
	engine   *chatflow.Engine
	store    *sessionStore
	history  chatHistory
	uploader imageUploader
	readFile func(string) ([]byte, error)
	in       io.Reader
	out      io.Writer
	logger   *zap.Logger
}

// Run resumes or starts a conversation and processes lines until EOF,
// /salir or ctx is canceled.
func (r *chatRunner) Run(ctx context.Context) error {
	conv, err := r.store.Load()
	if err != nil {
		r.logger.Warn("discarding saved conversation", zap.Error(err))
		conv = nil
	}

	if conv == nil {
		conv = r.engine.Start()
		r.save(conv)
	} else {
		fmt.Fprintln(r.out, "Retomando tu conversación. Escribe /nuevo para empezar otra.")
		r.rehydrate(ctx, conv)
		r.engine.Flush(ctx, conv)
		r.save(conv)
	}
	printMessages(r.out, conv.Messages, true)
	printMenu(r.out, menuFor(conv))

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(r.out, "> ")
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(r.out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(r.out)
				return nil
			}
			line = l
		}

		if quit := r.handle(ctx, conv, line); quit {
			return nil
		}
	}
}

// rehydrate puts the transcript stored on the server in front of the
// messages not yet sent. On failure only the local messages are shown.
func (r *chatRunner) rehydrate(ctx context.Context, conv *chatflow.Conversation) {
	if conv.SessionID == nil || r.history == nil {
		return
	}
	chat, err := r.history.GetChat(ctx, *conv.SessionID)
	if err != nil {
		r.logger.Warn("failed to load chat history",
			zap.String("session_id", conv.SessionID.String()),
			zap.Error(err),
		)
		fmt.Fprintln(r.out, "No pude recuperar los mensajes anteriores.")
		return
	}

	pending := conv.Pending()
	conv.Messages = append(append([]domain.ChatMessage(nil), chat.Messages...), pending...)
	conv.Flushed = len(chat.Messages)
}

// handle processes one typed line and reports whether the user asked to quit.
func (r *chatRunner) handle(ctx context.Context, conv *chatflow.Conversation, line string) bool {
	kind, ev, arg := parseInput(conv, line)
	switch kind {
	case inputEmpty:
		return false
	case inputQuit:
		return true
	case inputHelp:
		fmt.Fprint(r.out, chatHelp)
		return false
	case inputImage:
		if _, ok := conv.State.(chatflow.Question); !ok {
			ev = chatflow.Image("")
			break
		}
		url, err := r.upload(ctx, arg)
		if err != nil {
			fmt.Fprintf(r.out, "No pude subir la imagen: %v\n", err)
			return false
		}
		ev = chatflow.Image(url)
	case inputNew:
		if err := r.store.Clear(); err != nil {
			r.logger.Warn("failed to clear conversation", zap.Error(err))
		}
	}

	msgs := r.engine.Step(ctx, conv, ev)
	printMessages(r.out, msgs, false)
	printMenu(r.out, menuFor(conv))
	r.save(conv)
	return false
}

// upload compresses the image at path and returns its public URL.
func (r *chatRunner) upload(ctx context.Context, path string) (string, error) {
	if path == "" {
		return "", errors.New("usa /imagen <ruta>")
	}
	data, err := r.readFile(path)
	if err != nil {
		return "", err
	}
	if !imaging.IsImage(data) {
		return "", fmt.Errorf("%s no es una imagen", filepath.Base(path))
	}

	res := imaging.Compress(data, imaging.DefaultOptions())
	name := filepath.Base(path)
	if res.Compressed {
		name = strings.TrimSuffix(name, filepath.Ext(name)) + ".jpg"
	}
	r.logger.Debug("compressed image",
		zap.String("file", name),
		zap.Int("original_bytes", len(data)),
		zap.Int("bytes", len(res.Data)),
		zap.Bool("compressed", res.Compressed),
	)
	return r.uploader.UploadImage(ctx, name, res.Data)
}

func (r *chatRunner) save(conv *chatflow.Conversation) {
	if err := r.store.Save(conv); err != nil {
		r.logger.Warn("failed to save conversation", zap.Error(err))
	}
}
