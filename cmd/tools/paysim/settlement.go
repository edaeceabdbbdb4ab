package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zhouzirui/xrp-pay/backend/internal/logger"
	"github.com/zhouzirui/xrp-pay/backend/internal/service/settlement"
	"github.com/zhouzirui/xrp-pay/backend/pkg/utils"
)

func settlementCmd() *cobra.Command {
	var (
		addr     string
		signBase string
		fail     bool
	)
	cmd := &cobra.Command{
		Use:   "settlement",
		Short: "Run a stub settlement service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			stub := &stubSettlement{
				signBase: strings.TrimRight(signBase, "/"),
				fail:     fail,
				seen:     make(map[string]settlement.Disposition),
				log:      logger.S().Named("stub"),
			}
			srv := &http.Server{
				Addr:              addr,
				Handler:           stub.routes(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			go func() {
				<-cmd.Context().Done()
				_ = srv.Close()
			}()

			stub.log.Infow("stub settlement listening", "addr", addr, "fail", fail)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&signBase, "sign-base", "https://xumm.app/sign", "base of generated signing URLs")
	cmd.Flags().BoolVar(&fail, "fail", false, "answer every settlement callback with FAILED")
	return cmd
}

// stubSettlement answers the settlement API with canned payloads and
// replays its answer for a repeated idempotency key.
type stubSettlement struct {
	signBase string
	fail     bool

	mu   sync.Mutex
	seen map[string]settlement.Disposition
	log  *zap.SugaredLogger
}

func (s *stubSettlement) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Route("/api/v2/payments", func(r chi.Router) {
		r.Post("/initiate", s.handleInitiate(false))
		r.Post("/initiate/batch", s.handleInitiate(true))
		r.Post("/callback", s.handleCallback)
		r.Post("/callback/batch", s.handleCallback)
	})
	return r
}

func (s *stubSettlement) handleInitiate(batch bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req settlement.InitiateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		resp := settlement.InitiateResponse{
			RequestID: r.Header.Get("RequestId"),
			Status:    "PENDING",
			UserUUID:  uuid.NewString(),
		}
		resp.UserRedirectURL = s.signBase + "/" + resp.UserUUID
		if batch {
			resp.FeeUUID = uuid.NewString()
			resp.FeeRedirectURL = s.signBase + "/" + resp.FeeUUID
		}

		s.log.Infow("initiated",
			"request_id", resp.RequestID,
			"user", req.UserName,
			"amount", req.Amount.String(),
			"user_uuid", resp.UserUUID,
			"fee_uuid", resp.FeeUUID,
		)
		utils.RespondJSON(w, http.StatusOK, resp)
	}
}

func (s *stubSettlement) handleCallback(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")

	s.mu.Lock()
	defer s.mu.Unlock()

	if disp, ok := s.seen[key]; ok && key != "" {
		s.log.Infow("replayed settlement", "idempotency_key", key, "status", disp.Status)
		utils.RespondJSON(w, http.StatusOK, disp)
		return
	}

	disp := settlement.Disposition{Status: "COMPLETED", UserTxID: strings.ToUpper(uuid.NewString())}
	if s.fail {
		disp = settlement.Disposition{Status: "FAILED", Message: "stub configured to fail"}
	}
	if key != "" {
		s.seen[key] = disp
	}

	s.log.Infow("settled", "idempotency_key", key, "status", disp.Status)
	utils.RespondJSON(w, http.StatusOK, disp)
}
