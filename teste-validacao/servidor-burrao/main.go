package main

import (
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

// Upstream de validação manual: responde tudo e loga quem chegou até aqui,
// para conferir que os requests rejeitados pelo gateway não passam.
func main() {
	log := logrus.New()

	http.HandleFunc("/showTela", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<h1>Tela do Sistema</h1><p>Requisição recebida com sucesso!</p>")
		log.WithFields(logrus.Fields{
			"client":      r.Header.Get("X-Client-Id"),
			"route_class": r.Header.Get("X-Route-Class"),
			"xff":         r.Header.Get("X-Forwarded-For"),
		}).Info("alguém acessou o endpoint /showTela")
	})
	log.Info("servidor rodando em http://localhost:8081")
	if err := http.ListenAndServe(":8081", nil); err != nil {
		log.WithError(err).Fatal("erro ao subir o servidor")
	}
}
