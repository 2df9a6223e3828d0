package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Completion falso para testar o gateway localmente: responde em "streaming"
// uma palavra por vez.
func main() {
	http.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(r.Body).Decode(&in)

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		flusher, _ := w.(http.Flusher)
		for _, word := range []string{"Você", "disse:", in.Message} {
			fmt.Fprintf(w, "%s ", word)
			if flusher != nil {
				flusher.Flush()
			}
			time.Sleep(100 * time.Millisecond)
		}
		fmt.Println("Log: mensagem de chat recebida")
	})
	http.HandleFunc("/api/sites", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<h1>Site gerado</h1><p>Requisição recebida com sucesso!</p>")
		fmt.Println("Log: alguém gerou um site")
	})
	fmt.Println("Completion falso rodando em http://localhost:9000")
	if err := http.ListenAndServe(":9000", nil); err != nil {
		fmt.Printf("Erro ao subir o servidor: %s\n", err)
	}
}
