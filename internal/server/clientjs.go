package server

import (
	"fmt"
	"net/http"
)

// handleClientJS serves the page script that applies assignments
func (s *Server) handleClientJS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Determine server URL from request
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	serverURL := fmt.Sprintf("%s://%s", scheme, r.Host)

	w.Header().Set("Content-Type", "application/javascript")
	w.Header().Set("Cache-Control", "public, max-age=60")
	w.Write([]byte(GenerateClientScript(serverURL)))
}

// GenerateClientScript returns fl.js for the given server URL. Elements
// marked data-fl-experiment get their variant's content; elements marked
// data-fl-convert report a conversion when clicked.
func GenerateClientScript(serverURL string) string {
	return fmt.Sprintf(`(function(){
  var S='%s';
  var opts={credentials:'include'};

  fetch(S+'/api/experiments?page='+encodeURIComponent(location.pathname),opts)
    .then(function(r){return r.ok?r.json():[];})
    .then(function(list){
      list.forEach(function(a){
        if(a.control||!a.content)return;
        document.querySelectorAll('[data-fl-experiment="'+a.experiment_id+'"]').forEach(function(el){
          el.textContent=a.content;
          el.dataset.flVariant=a.variant_id;
        });
      });
    })
    .catch(function(){});

  document.querySelectorAll('[data-fl-convert]').forEach(function(el){
    el.addEventListener('click',function(){
      convert(el.dataset.flConvert,el.dataset.flMetric||'click',parseFloat(el.dataset.flValue||'1'));
    });
  });

  function convert(id,metric,value){
    fetch(S+'/api/experiments/'+encodeURIComponent(id)+'/conversions',{
      method:'POST',
      credentials:'include',
      keepalive:true,
      headers:{'Content-Type':'application/json'},
      body:JSON.stringify({metric:metric,value:value})
    }).catch(function(){});
  }

  window.forgeline={convert:convert};
})();`, serverURL)
}
