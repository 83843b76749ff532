package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/plant-wall/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"reading": func(ok bool, v int) string {
		if !ok {
			return "-"
		}
		return fmt.Sprint(v)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Plant Wall</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.running { color: green; font-weight: bold; }
.degraded { color: orange; font-weight: bold; }
.safe_mode { color: red; font-weight: bold; }
.initializing { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Plant Wall<span id="live-dot" class="live-dot pending" title="connecting"></span></h1>

<h2>State</h2>
<table>
<tr><th>Mode</th><td id="mode" class="{{.Mode}}">{{.Mode}}</td></tr>
<tr><th>Soil moisture</th><td id="soil_moisture">{{reading .HasReading .SoilMoisture}}</td></tr>
<tr><th>External light</th><td id="external_light">{{reading .HasReading .ExternalLight}}</td></tr>
<tr><th>Water tank</th><td id="water_tank_level">{{reading .HasReading .WaterTankLevel}}{{if .HasReading}}%{{end}}</td></tr>
<tr><th>Stale</th><td id="stale">{{if .Stale}}yes{{else}}no{{end}}</td></tr>
<tr><th>Light</th><td id="light_state">{{.Light}}</td></tr>
<tr><th>Pump</th><td id="pump_state">{{.Pump}}</td></tr>
<tr><th>Nutrients</th><td id="nutrient_state">{{.Nutrient}}</td></tr>
</table>

<h2>Faults</h2>
<table>
<tr><th>Degraded</th><td id="degraded">{{range $i, $d := .Degraded}}{{if $i}}, {{end}}{{$d}}{{else}}none{{end}}</td></tr>
<tr><th>Safe mode</th><td id="safe_mode_reason">{{if .SafeModeReason}}{{.SafeModeReason}}{{else}}-{{end}}</td></tr>
<tr><th>Sensor faults</th><td>{{.Faults.Sensor}}</td></tr>
<tr><th>Actuator faults</th><td>{{.Faults.Actuator}}</td></tr>
</table>
{{if eq (printf "%s" .Mode) "safe_mode"}}<form method="post" action="/safe-mode/reset"><button type="submit">Reset safe mode</button></form>
{{else}}<form method="post" action="/safe-mode/enter"><button type="submit">Emergency stop</button></form>
{{if and .HasReading (ne .Pump "watering")}}<form method="post" action="/watering"><button type="submit">Water now</button></form>{{end}}{{end}}

{{with .Limits}}<h2>Thresholds</h2>
<table>
<tr><th>Moisture</th><td>{{.MoistureLow}} - {{.MoistureHigh}}</td></tr>
<tr><th>Light threshold</th><td>{{.LightThreshold}}</td></tr>
<tr><th>Tank minimum</th><td>{{.WaterLevelLow}}%</td></tr>
<tr><th>Brightness</th><td>{{.Brightness}}%</td></tr>
<tr><th>Day</th><td>{{.DayDuration}}h from {{.DayStart}}h, night {{.NightDuration}}h</td></tr>
<tr><th>Watering</th><td>{{.WateringDuration}}s every {{.WateringInterval}}s</td></tr>
<tr><th>Nutrients</th><td>{{if eq .NutrientInterval 0.0}}disabled{{else}}{{.NutrientAmount}}ml every {{.NutrientInterval}}s{{end}}</td></tr>
</table>{{end}}

<h2>System</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Info.Broker}}{{.Info.Broker}}{{else}}disabled{{end}}</td></tr>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Tick</th><td id="tick">{{.Tick}} every {{.Info.TickInterval}}</td></tr>
<tr><th>HTTP</th><td>{{.Info.HTTPAddr}}</td></tr>
</table>

<p><a href="/status">JSON</a> <a href="/metrics">metrics</a></p>
<script>
(function() {
  var dot = document.getElementById("live-dot");
  var fields = ["soil_moisture", "external_light", "water_tank_level", "light_state", "pump_state", "nutrient_state"];

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  function connect() {
    var proto = location.protocol === "https:" ? "wss://" : "ws://";
    var ws = new WebSocket(proto + location.host + "/ws");
    ws.onopen = function() { setDot("ok", "live"); };
    ws.onclose = function() {
      setDot("err", "offline");
      setTimeout(connect, 5000);
    };
    ws.onmessage = function(ev) {
      try {
        var s = JSON.parse(ev.data);
        var mode = document.getElementById("mode");
        mode.textContent = s.mode;
        mode.className = s.mode;
        fields.forEach(function(f) {
          var v = s[f];
          document.getElementById(f).textContent = v === null ? "-" : v + (f === "water_tank_level" ? "%" : "");
        });
        document.getElementById("stale").textContent = s.stale ? "yes" : "no";
        document.getElementById("degraded").textContent = s.degraded.length ? s.degraded.join(", ") : "none";
        document.getElementById("safe_mode_reason").textContent = s.safe_mode_reason || "-";
      } catch (e) {}
    };
  }
  connect();
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot, info Info) error {
	data := struct {
		status.Snapshot
		Uptime time.Duration
		Info   Info
		Limits *status.ThresholdsJSON
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Info:     info,
	}
	if snap.Initialized {
		th := status.NewThresholdsJSON(snap.Thresholds)
		data.Limits = &th
	}
	return indexTmpl.Execute(w, data)
}
