package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// handleWebSocket upgrades the request, assigns a connection id and hands
// the client to the hub, which starts its pumps.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "addr", r.RemoteAddr, "err", err)
		return
	}

	client := newClient(uuid.NewString(), conn, s.hub, r.RemoteAddr, s.cfg, s.dispatch, s.log)
	client.onRateLimited = s.metrics.RateLimited

	if !s.hub.Register(client) {
		_ = conn.Close()
	}
}

// handleStats reports aggregate counts. It never mutates state.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.engine.Stats()); err != nil {
		s.log.Error("write stats response", "err", err)
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "Roomchat server is running!")
}

// TestPageHandler serves an HTML page that speaks the chat protocol, for
// manual testing from a browser.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprint(w, testPage)
}

const testPage = `<!DOCTYPE html>
<html>
<head>
    <title>Roomchat Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages { border: 1px solid #ccc; height: 300px; padding: 10px; overflow-y: scroll; margin: 10px 0; background-color: #f9f9f9; }
        #users { color: #555; margin: 5px 0; }
        #typing { color: #888; font-style: italic; height: 1.2em; }
        input[type="text"] { width: 300px; padding: 5px; margin-right: 10px; }
        button { padding: 5px 15px; background-color: #007cba; color: white; border: none; cursor: pointer; }
        button:hover { background-color: #005a87; }
        .reaction { cursor: pointer; margin-left: 6px; }
    </style>
</head>
<body>
    <h1>Roomchat</h1>

    <div>
        <input type="text" id="nameInput" placeholder="Display name">
        <button onclick="connect()">Connect</button>
        <select id="roomSelect" onchange="joinRoom()"></select>
    </div>
    <div id="users"></div>
    <div id="messages"></div>
    <div id="typing"></div>
    <div>
        <input type="text" id="messageInput" placeholder="Type a message..." disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
    </div>

    <script>
        let ws = null;
        let typingTimer = null;
        const messagesDiv = document.getElementById('messages');
        const messageInput = document.getElementById('messageInput');
        const sendButton = document.getElementById('sendButton');
        const roomSelect = document.getElementById('roomSelect');

        function send(type, data) {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify({type: type, data: data}));
            }
        }

        function renderMessage(m) {
            const el = document.createElement('div');
            el.id = 'msg-' + m.id;
            const text = m.type === 'file' && m.file ? '[file] ' + m.file.name : m.text;
            el.textContent = m.user.name + ': ' + text;
            const thumbs = document.createElement('span');
            thumbs.className = 'reaction';
            thumbs.onclick = function() { send('react-message', {messageId: m.id, emoji: '👍'}); };
            el.appendChild(thumbs);
            messagesDiv.appendChild(el);
            renderReactions(m.id, m.reactions || {});
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function renderReactions(id, reactions) {
            const el = document.querySelector('#msg-' + CSS.escape(id) + ' .reaction');
            if (!el) { return; }
            const users = reactions['👍'] || [];
            el.textContent = '👍 ' + users.length;
        }

        function connect() {
            ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws');
            ws.onopen = function() {
                send('join-chat', {name: document.getElementById('nameInput').value});
            };
            ws.onmessage = function(event) {
                const ev = JSON.parse(event.data);
                switch (ev.type) {
                case 'rooms-list':
                    roomSelect.innerHTML = '<option value="">Pick a room</option>';
                    ev.data.forEach(function(r) {
                        const opt = document.createElement('option');
                        opt.value = r.id;
                        opt.textContent = r.name + ' (' + r.userCount + ')';
                        roomSelect.appendChild(opt);
                    });
                    break;
                case 'joined-room':
                    messagesDiv.innerHTML = '';
                    ev.data.messages.forEach(renderMessage);
                    messageInput.disabled = false;
                    sendButton.disabled = false;
                    break;
                case 'room-users':
                    document.getElementById('users').textContent =
                        'Here: ' + ev.data.users.map(function(u) { return u.name; }).join(', ');
                    break;
                case 'new-message':
                    renderMessage(ev.data);
                    break;
                case 'reaction-updated':
                    renderReactions(ev.data.messageId, ev.data.reactions);
                    break;
                case 'user-typing':
                    document.getElementById('typing').textContent = ev.data.name + ' is typing...';
                    break;
                case 'user-stop-typing':
                    document.getElementById('typing').textContent = '';
                    break;
                }
            };
            ws.onclose = function() {
                messageInput.disabled = true;
                sendButton.disabled = true;
                ws = null;
            };
        }

        function joinRoom() {
            if (roomSelect.value) {
                send('join-room', {roomId: roomSelect.value});
            }
        }

        function sendMessage() {
            const text = messageInput.value.trim();
            if (text) {
                send('send-message', {text: text});
                send('typing-stop');
                messageInput.value = '';
            }
        }

        messageInput.addEventListener('keypress', function(e) {
            if (e.key === 'Enter') {
                sendMessage();
                return;
            }
            send('typing-start');
            clearTimeout(typingTimer);
            typingTimer = setTimeout(function() { send('typing-stop'); }, 1500);
        });
    </script>
</body>
</html>`
