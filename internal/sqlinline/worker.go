package sqlinline

// QWorkerClaimJobs flips up to $1 claimable jobs to in_progress in a single
// statement and returns them joined with theme and source image. Rows locked
// by a concurrent claim are skipped, never returned twice.
const QWorkerClaimJobs = `--sql 2745f698-4abb-46c4-9ae9-a3c3ce7b8a40
with next_jobs as (
    select id
    from jobs
    where status in ('new', 'retry')
    order by created_at asc, id asc
    limit $1::int
    for update skip locked
),
claimed as (
    update jobs j
    set status = 'in_progress',
        attempts = j.attempts + 1,
        claimed_at = now()
    from next_jobs n
    where j.id = n.id
    returning j.id, j.batch_id, j.result_image_id, j.user_id, j.user_text, j.attempts,
              j.theme_id, j.source_image_id, j.created_at
)
select
    c.id,
    c.batch_id,
    c.result_image_id,
    c.user_id,
    coalesce(c.user_text, ''),
    c.attempts,
    c.theme_id,
    t.id is not null as theme_found,
    coalesce(t.name, ''),
    coalesce(t.guidance_text, ''),
    coalesce(t.type, ''),
    coalesce(t.metadata, '{}'::jsonb),
    c.source_image_id,
    i.id is not null as source_found,
    i.data,
    coalesce(i.mime_type, '')
from claimed c
left join themes t on t.id = c.theme_id
left join images i on i.id = c.source_image_id
order by c.created_at asc, c.id asc;
`

const QWorkerMarkReady = `--sql 97324b16-0831-4eb1-8617-6ff6990cd921
update jobs
set engine = $2::text,
    finished_at = now(),
    last_error = null,
    status = 'ready'
where result_image_id = $1::uuid
  and status = 'in_progress'
  and attempts = $3::int;
`

const QWorkerMarkRetry = `--sql a4e8be09-403f-4bd5-ae4b-bbb49cf53e2e
update jobs
set status = 'retry',
    last_error = $2::text
where result_image_id = $1::uuid
  and status = 'in_progress'
  and attempts = $3::int;
`

const QWorkerMarkFailed = `--sql 93841871-cc9b-4f36-ac27-a202c39d57e2
update jobs
set status = 'failed',
    last_error = $2::text,
    finished_at = now()
where result_image_id = $1::uuid
  and status = 'in_progress'
  and attempts = $3::int;
`

const QWorkerResetStuck = `--sql e4752b33-1463-4cf5-95ab-418c99dc1c0f
update jobs
set status = 'retry',
    last_error = 'claim expired'
where status = 'in_progress'
  and claimed_at < $1::timestamptz;
`

const QSelectJobByResultImage = `--sql 84241ada-7904-473e-b045-e0311e1d751e
select id, batch_id, source_image_id, theme_id, result_image_id, user_id,
       coalesce(user_text, ''), status, coalesce(engine, ''), attempts,
       coalesce(last_error, ''), created_at, claimed_at, finished_at
from jobs
where result_image_id = $1::uuid;
`

const QInsertJob = `--sql 50b50fb2-01d7-4670-bb66-de6ab6c9112a
insert into jobs (id, batch_id, source_image_id, theme_id, result_image_id, user_id, user_text, status, attempts, created_at)
values ($1::uuid, $2::uuid, $3::uuid, $4::uuid, $5::uuid, $6::text, nullif($7::text, ''), 'new', 0, now());
`

const QCountJobsByStatus = `--sql 82930675-9094-4efd-93ac-e97dc5edeba0
select status, count(*)
from jobs
group by status;
`
